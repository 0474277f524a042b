// Package camtest emulates the mediaFileFind.cgi and RPC_Loadfile endpoints
// of an Amcrest camera for tests.
package camtest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"amcam/pkg/models"
)

// SessionCookie is set by factory.create and required by findNextFile and
// RPC_Loadfile.
const SessionCookie = "DhWebClientSessionID"

type search struct {
	results []models.MediaRecord
	cursor  int
}

type Camera struct {
	mu sync.Mutex

	// Records is the camera's recording index.
	Records []models.MediaRecord

	// FactoryStatus, when non-zero, is returned by factory.create instead
	// of an object id.
	FactoryStatus int
	// FindFileBody overrides the "OK" answer of findFile.
	FindFileBody string
	// FailLoads drops the connection for this many RPC_Loadfile requests
	// before serving any.
	FailLoads int
	// LoadStatus, when non-zero, is returned by RPC_Loadfile.
	LoadStatus int

	// Username and Password, when Username is set, make every request
	// answer a Digest challenge first and verify the response.
	Username string
	Password string

	nextID   int
	searches map[string]*search

	Created    int
	Closed     []string
	Conditions []url.Values
	Counts     []int
	Loads      []string
	NoCookie   int

	Challenges int
	DigestURIs []string
	BadDigest  int
}

func New(records ...models.MediaRecord) *Camera {
	return &Camera{Records: records, nextID: 1000, searches: map[string]*search{}}
}

// Start serves c on a new httptest server.
func (c *Camera) Start() *httptest.Server {
	return httptest.NewServer(c.Router())
}

// Content is the body served for a FilePath.
func Content(path string) []byte {
	return []byte("media:" + path)
}

func (c *Camera) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		// No keep-alive: a dropped connection must surface as an error
		// instead of a transparent transport retry.
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Connection", "close")
			next.ServeHTTP(w, req)
		})
	})
	r.Use(c.digestAuth)
	r.Get("/cgi-bin/mediaFileFind.cgi", c.mediaFileFind)
	r.Get("/cgi-bin/RPC_Loadfile/*", c.loadFile)
	return r
}

// OpenObjects lists factory objects that were created but never closed.
func (c *Camera) OpenObjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var open []string
	for id := range c.searches {
		open = append(open, id)
	}
	sort.Strings(open)
	return open
}

func (c *Camera) mediaFileFind(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := r.URL.Query()
	switch q.Get("action") {
	case "factory.create":
		if c.FactoryStatus != 0 {
			http.Error(w, "Error", c.FactoryStatus)
			return
		}
		c.nextID++
		c.Created++
		id := strconv.Itoa(c.nextID)
		c.searches[id] = &search{}
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "s" + id, Path: "/"})
		fmt.Fprintf(w, "result=%s\r\n", id)

	case "findFile":
		c.Conditions = append(c.Conditions, q)
		s, ok := c.searches[q.Get("object")]
		if !ok {
			http.Error(w, "Error", http.StatusBadRequest)
			return
		}
		if c.FindFileBody != "" {
			fmt.Fprint(w, c.FindFileBody)
			return
		}
		s.results = c.match(q)
		s.cursor = 0
		fmt.Fprint(w, "OK\r\n")

	case "findNextFile":
		if !hasSession(r) {
			c.NoCookie++
		}
		s, ok := c.searches[q.Get("object")]
		if !ok {
			http.Error(w, "Error", http.StatusBadRequest)
			return
		}
		count, _ := strconv.Atoi(q.Get("count"))
		c.Counts = append(c.Counts, count)
		end := min(s.cursor+count, len(s.results))
		page := s.results[s.cursor:end]
		s.cursor = end
		fmt.Fprint(w, Render(page))

	case "close":
		id := q.Get("object")
		delete(c.searches, id)
		c.Closed = append(c.Closed, id)
		fmt.Fprint(w, "OK\r\n")

	default:
		http.Error(w, "Error", http.StatusBadRequest)
	}
}

func (c *Camera) match(q url.Values) []models.MediaRecord {
	start, err1 := models.ParseCameraTime(q.Get("condition.StartTime"))
	end, err2 := models.ParseCameraTime(q.Get("condition.EndTime"))
	if err1 != nil || err2 != nil {
		return nil
	}
	channel := q.Get("condition.Channel")
	media := q.Get("condition.Types[0]")

	var out []models.MediaRecord
	for _, rec := range c.Records {
		st, err := rec.Start()
		if err != nil || st.Before(start) || st.After(end) {
			continue
		}
		if rec.Type != media || strconv.Itoa(rec.Channel) != channel {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (c *Camera) loadFile(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	path := strings.TrimPrefix(r.URL.Path, "/cgi-bin/RPC_Loadfile")
	c.Loads = append(c.Loads, path)
	if !hasSession(r) {
		c.NoCookie++
	}
	fail := c.FailLoads > 0
	if fail {
		c.FailLoads--
	}
	status := c.LoadStatus
	c.mu.Unlock()

	if fail {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "no hijack", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}
	if status != 0 {
		http.Error(w, "Error", status)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(Content(path))
}

const (
	realm = "Login to amcam-test"
	nonce = "5d1e2c4b7a9f"
)

func (c *Camera) digestAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		user, pass := c.Username, c.Password
		c.mu.Unlock()
		if user == "" {
			next.ServeHTTP(w, r)
			return
		}

		params, ok := parseDigest(r.Header.Get("Authorization"))
		if !ok {
			c.mu.Lock()
			c.Challenges++
			c.mu.Unlock()
			w.Header().Set("WWW-Authenticate",
				fmt.Sprintf(`Digest realm="%s", qop="auth", nonce="%s", algorithm=MD5`, realm, nonce))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ha1 := md5hex(user + ":" + realm + ":" + pass)
		ha2 := md5hex(r.Method + ":" + params["uri"])
		want := md5hex(ha1 + ":" + params["nonce"] + ":" + params["nc"] + ":" + params["cnonce"] + ":" + params["qop"] + ":" + ha2)

		valid := params["username"] == user && params["realm"] == realm &&
			params["nonce"] == nonce && params["uri"] == r.RequestURI && params["response"] == want

		c.mu.Lock()
		c.DigestURIs = append(c.DigestURIs, params["uri"])
		if !valid {
			c.BadDigest++
		}
		c.mu.Unlock()

		if !valid {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseDigest(h string) (map[string]string, bool) {
	rest, ok := strings.CutPrefix(h, "Digest ")
	if !ok {
		return nil, false
	}
	params := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		params[k] = strings.Trim(v, `"`)
	}
	return params, params["response"] != ""
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hasSession(r *http.Request) bool {
	ck, err := r.Cookie(SessionCookie)
	return err == nil && ck.Value != ""
}

// Render formats records the way findNextFile does.
func Render(recs []models.MediaRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "found=%d\r\n", len(recs))
	for i, rec := range recs {
		fmt.Fprintf(&b, "items[%d].Channel=%d\r\n", i, rec.Channel)
		fmt.Fprintf(&b, "items[%d].EndTime=%s\r\n", i, rec.EndTime)
		fmt.Fprintf(&b, "items[%d].Events[0]=VideoMotion\r\n", i)
		fmt.Fprintf(&b, "items[%d].FilePath=%s\r\n", i, rec.FilePath)
		fmt.Fprintf(&b, "items[%d].Length=%d\r\n", i, len(Content(rec.FilePath)))
		fmt.Fprintf(&b, "items[%d].StartTime=%s\r\n", i, rec.StartTime)
		fmt.Fprintf(&b, "items[%d].Type=%s\r\n", i, rec.Type)
	}
	return b.String()
}

// Record builds a record whose FilePath follows the camera's SD layout.
func Record(media, start, end string) models.MediaRecord {
	date, clock, _ := strings.Cut(start, " ")
	return models.MediaRecord{
		StartTime: start,
		EndTime:   end,
		Type:      media,
		FilePath: fmt.Sprintf("/mnt/sd/%s/001/%s/%s[M][0@0][0].%s",
			date, media, strings.ReplaceAll(clock, ":", "/"), media),
	}
}
