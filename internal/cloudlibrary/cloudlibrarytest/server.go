// Package cloudlibrarytest provides an in-memory cloudLibrary and Findaway
// service for tests.
package cloudlibrarytest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Fixed values the fake service accepts.
const (
	Library    = "mylib"
	Username   = "12345678"
	Password   = "0000"
	SessionKey = "findaway-session-key"
)

// Title is one catalog entry of the fake service.
type Title struct {
	ID        string
	Title     string
	SubTitle  string
	Authors   []string
	Narrators []string
	Series    []string
	MediaType string
	CanLoan   bool
	Chapters  int
}

// Payload returns the audio bytes served for a chapter of a title.
func Payload(mediaID string, chapter int) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("%s/%d;", mediaID, chapter)), 100+chapter)
}

// Cover returns the JPEG served as cover art.
func Cover() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

// Server is a fake cloudLibrary service. Its zero configuration serves
// one held audiobook ("abc123") and one borrowable one ("def456").
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	titles    map[string]*Title
	held      []string
	hidden    map[string]bool
	sessions  map[string]bool
	nextToken int
	calls     map[string]int

	// Hooks let tests inject failures. A hook that returns true has
	// written the response.
	BorrowHook  func(w http.ResponseWriter, mediaID string) bool
	LoginHook   func(w http.ResponseWriter) bool
	ChapterHook func(w http.ResponseWriter, mediaID string, chapter, call int) bool

	// QueueBorrows accepts borrows without putting the title on loan.
	QueueBorrows bool
}

// New starts a fake service that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		titles:   make(map[string]*Title),
		hidden:   make(map[string]bool),
		sessions: make(map[string]bool),
		calls:    make(map[string]int),
	}
	s.AddTitle(&Title{
		ID:        "abc123",
		Title:     "Some Book",
		SubTitle:  "A Novel",
		Authors:   []string{"Jane Doe", "John Roe"},
		Narrators: []string{"Nick Narrator"},
		Series:    []string{"The Saga #3"},
		MediaType: "Mp3",
		Chapters:  4,
	}, true)
	s.AddTitle(&Title{
		ID:        "def456",
		Title:     "Other Book",
		SubTitle:  "Stories",
		Authors:   []string{"Ann Author"},
		MediaType: "Mp3",
		CanLoan:   true,
		Chapters:  3,
	}, false)

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// HideLoan keeps a held title off the loan page while it stays playable.
func (s *Server) HideLoan(mediaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[mediaID] = true
}

// AddTitle adds a title to the catalog, optionally on loan.
func (s *Server) AddTitle(title *Title, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[title.ID] = title
	if held {
		s.held = append(s.held, title.ID)
	}
}

// Held reports whether mediaID is on loan.
func (s *Server) Held(mediaID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHeld(mediaID)
}

// Calls returns how often an operation was requested. Operations are
// "login", "loans", "detail", "borrow", "return", "listen", "metadata",
// "playlist" and "chapter:<id>/<n>".
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *Server) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.calls[op]
}

func (s *Server) isHeld(mediaID string) bool {
	for _, id := range s.held {
		if id == mediaID {
			return true
		}
	}
	return false
}

func (s *Server) authorized(r *http.Request) bool {
	c, err := r.Cookie("__session_PROD")
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	libPrefix := "/library/" + Library

	switch {
	case path == libPrefix+"/featured":
		s.count("featured")
		http.SetCookie(w, &http.Cookie{Name: "__config_PROD", Value: "cfg"})
		w.Write([]byte("<html></html>"))

	case path == "/" && r.URL.Query().Get("_data") == "root" && r.Method == http.MethodPost:
		s.login(w, r)

	case path == libPrefix+"/mybooks/current":
		s.myBooks(w, r)

	case strings.HasPrefix(path, libPrefix+"/detail/"):
		s.detail(w, r, strings.TrimPrefix(path, libPrefix+"/detail/"))

	case strings.HasPrefix(path, "/listen/"):
		s.listen(w, r, strings.TrimPrefix(path, "/listen/"))

	case strings.HasPrefix(path, "/v4/accounts/"):
		s.metadata(w, r, path)

	case strings.HasPrefix(path, "/v4/audiobooks/") && strings.HasSuffix(path, "/playlists"):
		s.playlist(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/v4/audiobooks/"), "/playlists"))

	case strings.HasPrefix(path, "/audio/"):
		s.chapter(w, r, strings.TrimPrefix(path, "/audio/"))

	case strings.HasPrefix(path, "/cover/"):
		s.count("cover")
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(Cover())

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.count("login")
	if s.LoginHook != nil && s.LoginHook(w) {
		return
	}
	if r.FormValue("action") != "login" || r.FormValue("library") != Library ||
		r.FormValue("barcode") != Username || r.FormValue("pin") != Password {
		writeJSON(w, map[string]any{"error": "invalid login"})
		return
	}

	s.mu.Lock()
	s.nextToken++
	token := "tok-" + strconv.Itoa(s.nextToken)
	s.sessions[token] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "__session_PROD", Value: token})
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) myBooks(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		if r.URL.Query().Has("_data") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		http.Redirect(w, r, "/library/"+Library+"/login", http.StatusFound)
		return
	}
	if !r.URL.Query().Has("_data") {
		w.Write([]byte("<html>my books</html>"))
		return
	}

	s.count("loans")
	if r.FormValue("sort") != "BorrowedDateDescending" {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	items := make([]map[string]any, 0, len(s.held))
	for i := len(s.held) - 1; i >= 0; i-- {
		if s.hidden[s.held[i]] {
			continue
		}
		t := s.titles[s.held[i]]
		items = append(items, map[string]any{
			"itemId":    t.ID,
			"title":     t.Title,
			"authors":   strings.Join(t.Authors, "; "),
			"mediaType": t.MediaType,
			"dueDate":   "2026-11-01T00:00:00Z",
		})
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"patronItems": items})
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request, mediaID string) {
	if !s.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch r.URL.Query().Get("action") {
	case "borrow":
		s.borrow(w, mediaID)
		return
	case "return":
		s.giveBack(w, mediaID)
		return
	}

	s.count("detail")
	s.mu.Lock()
	t, ok := s.titles[mediaID]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	status := "NOT_AVAILABLE"
	if t.CanLoan {
		status = "CAN_LOAN"
	}
	writeJSON(w, map[string]any{"book": map[string]any{
		"itemId":      t.ID,
		"title":       t.Title,
		"SubTitle":    t.SubTitle,
		"authors":     t.Authors,
		"isbn":        "978-" + t.ID,
		"description": "About " + t.Title,
		"mediaType":   t.MediaType,
		"status":      status,
	}})
}

func (s *Server) borrow(w http.ResponseWriter, mediaID string) {
	s.count("borrow")
	if s.BorrowHook != nil && s.BorrowHook(w, mediaID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.titles[mediaID]
	if !ok || !t.CanLoan || s.isHeld(mediaID) {
		writeJSON(w, map[string]any{"error": map[string]any{"msg": "cannot borrow"}})
		return
	}
	if !s.QueueBorrows {
		s.held = append(s.held, mediaID)
		t.CanLoan = false
	}
	writeJSON(w, map[string]any{"status": "SUCCESS"})
}

func (s *Server) giveBack(w http.ResponseWriter, mediaID string) {
	s.count("return")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.held {
		if id == mediaID {
			s.held = append(s.held[:i], s.held[i+1:]...)
			s.titles[mediaID].CanLoan = true
			writeJSON(w, map[string]any{"status": "SUCCESS"})
			return
		}
	}
	writeJSON(w, map[string]any{"status": "FAILED"})
}

func (s *Server) listen(w http.ResponseWriter, r *http.Request, mediaID string) {
	s.count("listen")
	if !s.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	s.mu.Lock()
	t, ok := s.titles[mediaID]
	held := s.isHeld(mediaID)
	s.mu.Unlock()
	if !ok || !held {
		http.NotFound(w, r)
		return
	}

	items := make([]map[string]any, t.Chapters)
	for i := range items {
		items[i] = map[string]any{"title": fmt.Sprintf("Chapter %d", i+1), "duration": 60 + i}
	}
	writeJSON(w, map[string]any{"audiobook": map[string]any{
		"fulfillmentId": "ful-" + t.ID,
		"accountId":     4711,
		"sessionKey":    SessionKey,
		"licenseId":     "lic-" + t.ID,
		"items":         items,
	}})
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request, path string) {
	s.count("metadata")
	if r.Header.Get("Session-Key") != SessionKey {
		http.Error(w, "bad session key", http.StatusUnauthorized)
		return
	}
	parts := strings.Split(strings.TrimPrefix(path, "/v4/accounts/"), "/")
	if len(parts) != 3 || parts[0] != "4711" || parts[1] != "audiobooks" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	t, ok := s.titles[strings.TrimPrefix(parts[2], "ful-")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]any{"audiobook": map[string]any{
		"title":     t.Title,
		"authors":   t.Authors,
		"narrators": t.Narrators,
		"language":  "en",
		"cover_url": s.URL + "/cover/" + t.ID + ".jpg",
		"series":    t.Series,
	}})
}

func (s *Server) playlist(w http.ResponseWriter, r *http.Request, fulfillmentID string) {
	call := s.count("playlist")
	if r.Method != http.MethodPost || r.Header.Get("Session-Key") != SessionKey {
		http.Error(w, "bad request", http.StatusUnauthorized)
		return
	}

	var body struct {
		LicenseID string `json:"license_id"`
	}
	data, _ := io.ReadAll(r.Body)
	mediaID := strings.TrimPrefix(fulfillmentID, "ful-")
	if err := json.Unmarshal(data, &body); err != nil || body.LicenseID != "lic-"+mediaID {
		http.Error(w, "bad license", http.StatusForbidden)
		return
	}

	s.mu.Lock()
	t, ok := s.titles[mediaID]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	entries := make([]map[string]any, t.Chapters)
	for i := range entries {
		entries[i] = map[string]any{"url": fmt.Sprintf("%s/audio/%s/%d.mp3?sig=%d", s.URL, t.ID, i, call)}
	}
	writeJSON(w, map[string]any{"playlist": entries})
}

func (s *Server) chapter(w http.ResponseWriter, r *http.Request, rest string) {
	if r.Header.Get("Session-Key") != SessionKey {
		http.Error(w, "bad session key", http.StatusUnauthorized)
		return
	}
	mediaID, file, ok := strings.Cut(rest, "/")
	n, err := strconv.Atoi(strings.TrimSuffix(file, ".mp3"))
	if !ok || err != nil {
		http.NotFound(w, r)
		return
	}

	call := 0
	if r.Method == http.MethodGet {
		call = s.count(fmt.Sprintf("chapter:%s/%d", mediaID, n))
	}
	if s.ChapterHook != nil && s.ChapterHook(w, mediaID, n, call) {
		return
	}

	body := Payload(mediaID, n)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == http.MethodGet {
		w.Write(body)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
