package client

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"amcam/pkg/models"
)

// ParsePage decodes a findNextFile body:
//
//	found=2
//	items[0].Channel=0
//	items[0].EndTime=2020-09-17 11:10:52
//	items[0].FilePath=/mnt/sd/2020-09-17/001/jpg/11/10/52[M][0@0][0].jpg
//	...
//
// Fields are grouped by their items[N] index; unknown fields are kept in
// MediaRecord.Extra. When the found line is absent Found equals the number
// of records decoded.
func ParsePage(body string) (models.Page, error) {
	var (
		page     models.Page
		hasFound bool
		byIndex  = map[int]*models.MediaRecord{}
	)

	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)

		if key == "found" {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return models.Page{}, fmt.Errorf("line %d: bad found count %q", lineNo, value)
			}
			page.Found = n
			hasFound = true
			continue
		}

		idx, field, ok := splitItemKey(key)
		if !ok {
			continue
		}
		rec := byIndex[idx]
		if rec == nil {
			rec = &models.MediaRecord{Index: idx}
			byIndex[idx] = rec
		}
		if err := setField(rec, field, value); err != nil {
			return models.Page{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return models.Page{}, err
	}

	idxs := make([]int, 0, len(byIndex))
	for i := range byIndex {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	for _, i := range idxs {
		page.Records = append(page.Records, *byIndex[i])
	}

	if !hasFound {
		page.Found = len(page.Records)
	}
	return page, nil
}

// splitItemKey turns "items[3].FilePath" into (3, "FilePath").
func splitItemKey(key string) (int, string, bool) {
	rest, ok := strings.CutPrefix(key, "items[")
	if !ok {
		return 0, "", false
	}
	num, field, ok := strings.Cut(rest, "].")
	if !ok || field == "" {
		return 0, "", false
	}
	idx, err := strconv.Atoi(num)
	if err != nil || idx < 0 {
		return 0, "", false
	}
	return idx, field, true
}

func setField(rec *models.MediaRecord, field, value string) error {
	switch field {
	case "Channel":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("items[%d].Channel: %q is not a number", rec.Index, value)
		}
		rec.Channel = n
	case "StartTime":
		rec.StartTime = strings.TrimSpace(value)
	case "EndTime":
		rec.EndTime = strings.TrimSpace(value)
	case "FilePath":
		rec.FilePath = strings.TrimSpace(value)
	case "Type":
		rec.Type = strings.TrimSpace(value)
	case "Length":
		if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			rec.Length = n
			return nil
		}
		fallthrough
	default:
		if rec.Extra == nil {
			rec.Extra = map[string]string{}
		}
		rec.Extra[field] = value
	}
	return nil
}
