package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/etudekit/etude/internal/adapters/convert"
	"github.com/etudekit/etude/internal/adapters/http/api"
	"github.com/etudekit/etude/internal/adapters/repository"
	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/internal/domain/score"
	"github.com/etudekit/etude/internal/domain/types"
)

var errMissing = errors.New("session not found")

// fakeDeps implements api.Dependencies with canned data and a call log.
type fakeDeps struct {
	scores    map[string]types.ScoreInfo
	sessions  map[string]types.SessionSnapshot
	summaries map[string]model.SessionSummary
	calls     []string

	convertResult []byte
	convertErr    error
}

func newFakeDeps() *fakeDeps {
	return &fakeDeps{
		scores:    make(map[string]types.ScoreInfo),
		sessions:  make(map[string]types.SessionSnapshot),
		summaries: make(map[string]model.SessionSummary),
	}
}

func (f *fakeDeps) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeDeps) LoadScore(ctx context.Context, title, source string, doc []byte) (types.ScoreInfo, error) {
	if !bytes.Contains(doc, []byte("score-partwise")) {
		return types.ScoreInfo{}, fmt.Errorf("%w: not musicxml", score.ErrMalformedDocument)
	}
	info := types.ScoreInfo{ID: "score-1", Title: title, Source: source, Measures: 2, Beats: 6}
	f.scores[info.ID] = info
	return info, nil
}

func (f *fakeDeps) GetScore(id string) (types.ScoreInfo, []model.Beat, error) {
	info, ok := f.scores[id]
	if !ok {
		return types.ScoreInfo{}, nil, errors.New("score not found")
	}
	return info, []model.Beat{{Index: 0, ExpectedPitches: []uint8{60}}}, nil
}

func (f *fakeDeps) ListScores() []types.ScoreInfo {
	out := make([]types.ScoreInfo, 0, len(f.scores))
	for _, info := range f.scores {
		out = append(out, info)
	}
	return out
}

func (f *fakeDeps) ConvertImage(ctx context.Context, filename string, data []byte) ([]byte, error) {
	if f.convertErr != nil {
		return nil, f.convertErr
	}
	return f.convertResult, nil
}

func (f *fakeDeps) OpenSession(ctx context.Context, scoreID string) (types.SessionSnapshot, error) {
	if _, ok := f.scores[scoreID]; !ok {
		return types.SessionSnapshot{}, errors.New("score not found")
	}
	snap := types.SessionSnapshot{ID: "session-1", ScoreID: scoreID, State: "stopped", TotalBeats: 6}
	f.sessions[snap.ID] = snap
	return snap, nil
}

func (f *fakeDeps) CloseSession(id string) error {
	if _, ok := f.sessions[id]; !ok {
		return errMissing
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeDeps) PlaySession(ctx context.Context, id string) error {
	return f.transition(id, "play")
}

func (f *fakeDeps) PauseSession(id string) error  { return f.transition(id, "pause") }
func (f *fakeDeps) ResumeSession(id string) error { return f.transition(id, "resume") }
func (f *fakeDeps) StopSession(id string) error   { return f.transition(id, "stop") }

func (f *fakeDeps) SeekSession(id string, beat int) error {
	if err := f.transition(id, "seek"); err != nil {
		return err
	}
	f.record("seek:%d", beat)
	return nil
}

func (f *fakeDeps) transition(id, op string) error {
	if _, ok := f.sessions[id]; !ok {
		return errMissing
	}
	f.record("%s", op)
	return nil
}

func (f *fakeDeps) SessionInput(id string, pitch, velocity uint8) error {
	if _, ok := f.sessions[id]; !ok {
		return errMissing
	}
	f.record("input:%d:%d", pitch, velocity)
	return nil
}

func (f *fakeDeps) SessionKeyInput(id, key string, down bool, octaveShift int) error {
	if _, ok := f.sessions[id]; !ok {
		return errMissing
	}
	f.record("key:%s:%t:%d", key, down, octaveShift)
	return nil
}

func (f *fakeDeps) SessionSnapshot(id string) (types.SessionSnapshot, error) {
	snap, ok := f.sessions[id]
	if !ok {
		return types.SessionSnapshot{}, errMissing
	}
	return snap, nil
}

func (f *fakeDeps) SessionResult(ctx context.Context, id string) (model.SessionSummary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return model.SessionSummary{}, errMissing
	}
	return s, nil
}

func (f *fakeDeps) LessonHistory(ctx context.Context, lessonUID string) ([]model.SessionSummary, error) {
	var out []model.SessionSummary
	for _, s := range f.summaries {
		if s.Lesson.UID == lessonUID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeDeps) LessonStats(ctx context.Context, lessonUID string) (repository.Aggregate, error) {
	history, _ := f.LessonHistory(ctx, lessonUID)
	agg := repository.Aggregate{Attempts: len(history)}
	for _, s := range history {
		if s.Performance.Score > agg.High {
			agg.High = s.Performance.Score
		}
	}
	return agg, nil
}

func (f *fakeDeps) Activity(ctx context.Context, bucket repository.Bucket) ([]repository.ActivityPoint, error) {
	return []repository.ActivityPoint{{Label: "2026-03-02", Sessions: len(f.summaries)}}, nil
}

func (f *fakeDeps) GetStats() map[string]any {
	return map[string]any{"sessions": len(f.sessions)}
}

func newTestServer(deps *fakeDeps, opts ...api.ServerOption) http.Handler {
	return api.NewServer(deps, deps, opts...).Router()
}

func doJSON(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const xmlDoc = `<?xml version="1.0"?><score-partwise version="4.0"></score-partwise>`

func TestScoreRoutes(t *testing.T) {
	Convey("Given the API over fake dependencies", t, func() {
		deps := newFakeDeps()
		h := newTestServer(deps)

		Convey("When a MusicXML document is posted", func() {
			req := httptest.NewRequest(http.MethodPost, "/scores?title=Minuet&source=g-major", strings.NewReader(xmlDoc))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Convey("Then the score is created", func() {
				So(rec.Code, ShouldEqual, http.StatusCreated)
				var info types.ScoreInfo
				So(json.Unmarshal(rec.Body.Bytes(), &info), ShouldBeNil)
				So(info.ID, ShouldEqual, "score-1")
				So(info.Title, ShouldEqual, "Minuet")
			})

			Convey("And it shows up in the listing and lookup", func() {
				rec := doJSON(h, http.MethodGet, "/scores", nil)
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "score-1")

				rec = doJSON(h, http.MethodGet, "/scores/score-1", nil)
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `"beats"`)
			})
		})

		Convey("When the document is not MusicXML", func() {
			req := httptest.NewRequest(http.MethodPost, "/scores", strings.NewReader("not xml"))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(rec.Body.String(), ShouldContainSubstring, "malformed_score")
		})

		Convey("When the body is empty", func() {
			req := httptest.NewRequest(http.MethodPost, "/scores", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the document exceeds the upload cap", func() {
			small := newTestServer(deps, api.WithMaxUploadBytes(16))
			req := httptest.NewRequest(http.MethodPost, "/scores", strings.NewReader(xmlDoc))
			rec := httptest.NewRecorder()
			small.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})

		Convey("When an unknown score is fetched", func() {
			rec := doJSON(h, http.MethodGet, "/scores/nope", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func multipartUpload(fieldName, filename string, data []byte) (*bytes.Buffer, string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile(fieldName, filename)
	part.Write(data)
	mw.Close()
	return &body, mw.FormDataContentType()
}

func TestConvertRoute(t *testing.T) {
	Convey("Given the API over fake dependencies", t, func() {
		deps := newFakeDeps()
		deps.convertResult = []byte(xmlDoc)
		h := newTestServer(deps)

		Convey("When a sheet image is uploaded", func() {
			body, contentType := multipartUpload("file", "minuet.png", []byte{0x89, 'P', 'N', 'G'})
			req := httptest.NewRequest(http.MethodPost, "/convert", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Convey("Then the converted MusicXML comes back", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldEqual, "application/vnd.recordare.musicxml+xml")
				So(rec.Body.String(), ShouldEqual, xmlDoc)
			})
		})

		Convey("When the multipart field is missing", func() {
			body, contentType := multipartUpload("wrong", "minuet.png", []byte{1})
			req := httptest.NewRequest(http.MethodPost, "/convert", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When conversion fails upstream", func() {
			cases := []struct {
				err  error
				code int
			}{
				{convert.ErrTooLarge, http.StatusRequestEntityTooLarge},
				{convert.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
				{convert.ErrNotConfigured, http.StatusServiceUnavailable},
				{convert.ErrConversionFailed, http.StatusBadGateway},
			}
			for _, tc := range cases {
				deps.convertErr = tc.err
				body, contentType := multipartUpload("file", "a.png", []byte{1})
				req := httptest.NewRequest(http.MethodPost, "/convert", body)
				req.Header.Set("Content-Type", contentType)
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				So(rec.Code, ShouldEqual, tc.code)
			}
		})
	})
}

func TestSessionRoutes(t *testing.T) {
	Convey("Given the API with one loaded score", t, func() {
		deps := newFakeDeps()
		deps.scores["score-1"] = types.ScoreInfo{ID: "score-1", Title: "Minuet"}
		h := newTestServer(deps)

		Convey("When a session is created", func() {
			rec := doJSON(h, http.MethodPost, "/sessions", map[string]string{"score_id": "score-1"})

			Convey("Then the snapshot comes back created", func() {
				So(rec.Code, ShouldEqual, http.StatusCreated)
				var snap types.SessionSnapshot
				So(json.Unmarshal(rec.Body.Bytes(), &snap), ShouldBeNil)
				So(snap.ID, ShouldEqual, "session-1")
				So(snap.State, ShouldEqual, "stopped")
			})

			Convey("And the playback controls acknowledge", func() {
				for _, path := range []string{"play", "pause", "resume", "stop"} {
					rec := doJSON(h, http.MethodPost, "/sessions/session-1/"+path, nil)
					So(rec.Code, ShouldEqual, http.StatusOK)
				}
				rec := doJSON(h, http.MethodPost, "/sessions/session-1/seek", map[string]int{"beat": 4})
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(deps.calls, ShouldContain, "seek:4")
			})

			Convey("And MIDI input is accepted", func() {
				rec := doJSON(h, http.MethodPost, "/sessions/session-1/input", map[string]any{"pitch": 60})
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(deps.calls, ShouldContain, "input:60:64") // default velocity applied
			})

			Convey("And keyboard input is accepted", func() {
				rec := doJSON(h, http.MethodPost, "/sessions/session-1/input",
					map[string]any{"key": "d", "octave_shift": 1})
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(deps.calls, ShouldContain, "key:d:true:1")
			})

			Convey("And input without pitch or key is rejected", func() {
				rec := doJSON(h, http.MethodPost, "/sessions/session-1/input", map[string]any{})
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And the session can be closed once", func() {
				rec := doJSON(h, http.MethodDelete, "/sessions/session-1", nil)
				So(rec.Code, ShouldEqual, http.StatusOK)
				rec = doJSON(h, http.MethodDelete, "/sessions/session-1", nil)
				So(rec.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the score id is missing", func() {
			rec := doJSON(h, http.MethodPost, "/sessions", map[string]string{})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the score does not exist", func() {
			rec := doJSON(h, http.MethodPost, "/sessions", map[string]string{"score_id": "nope"})
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When controlling an unknown session", func() {
			rec := doJSON(h, http.MethodPost, "/sessions/ghost/play", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)

			rec = doJSON(h, http.MethodGet, "/sessions/ghost", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestResultAndLessonRoutes(t *testing.T) {
	Convey("Given stored session summaries", t, func() {
		deps := newFakeDeps()
		deps.summaries["session-1"] = model.SessionSummary{
			ID:          "session-1",
			Lesson:      model.Lesson{UID: "lesson-a", Title: "Minuet"},
			Performance: model.Performance{Attempts: 2, Score: 85},
		}
		h := newTestServer(deps)

		Convey("When the result is fetched", func() {
			rec := doJSON(h, http.MethodGet, "/sessions/session-1/result", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			var summary model.SessionSummary
			So(json.Unmarshal(rec.Body.Bytes(), &summary), ShouldBeNil)
			So(summary.Performance.Score, ShouldEqual, 85)
		})

		Convey("When an unknown result is fetched", func() {
			rec := doJSON(h, http.MethodGet, "/sessions/ghost/result", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When lesson stats and history are read", func() {
			rec := doJSON(h, http.MethodGet, "/lessons/lesson-a/stats", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"attempts":1`)

			rec = doJSON(h, http.MethodGet, "/lessons/lesson-a/history", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "session-1")
		})

		Convey("When practice activity is read", func() {
			rec := doJSON(h, http.MethodGet, "/activity", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "2026-03-02")
		})

		Convey("When the activity bucket is unknown", func() {
			rec := doJSON(h, http.MethodGet, "/activity?bucket=year", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Given the API over fake dependencies", t, func() {
		deps := newFakeDeps()
		h := newTestServer(deps)

		Convey("When /stats is read", func() {
			rec := doJSON(h, http.MethodGet, "/stats", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "sessions")
		})

		Convey("When /healthz is read", func() {
			rec := doJSON(h, http.MethodGet, "/healthz", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When a disallowed method is used", func() {
			rec := doJSON(h, http.MethodDelete, "/scores", nil)
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
