package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/database"
	"github.com/marsik/reid-mine/internal/feature"
)

func testConfig() *config.Config {
	return &config.Config{
		Mining: config.MiningConfig{
			Margin:    0.3,
			Persons:   2,
			PerPerson: 2,
		},
	}
}

// fakeStore is an in-memory SampleStore.
type fakeStore struct {
	samples []database.StoredSample
	failing bool
}

func (f *fakeStore) Save(_ context.Context, sample *database.StoredSample) error {
	if f.failing {
		return errors.New("store unavailable")
	}
	f.samples = append(f.samples, *sample)
	return nil
}

func (f *fakeStore) NextSeq(_ context.Context, personID, camID int) (int, error) {
	if f.failing {
		return 0, errors.New("store unavailable")
	}
	n := 0
	for _, s := range f.samples {
		if s.PersonID == personID && s.CamID == camID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FindSimilar(_ context.Context, embedding []float32, limit int) ([]database.StoredSample, []float64, error) {
	if f.failing {
		return nil, nil, errors.New("store unavailable")
	}
	out := f.samples
	if len(out) > limit {
		out = out[:limit]
	}
	distances := make([]float64, len(out))
	for i, s := range out {
		distances[i] = database.EuclideanDistance(embedding, s.Embedding)
	}
	return out, distances, nil
}

func (f *fakeStore) Stats(_ context.Context, perPerson bool) (*database.StoreStats, error) {
	if f.failing {
		return nil, errors.New("store unavailable")
	}
	persons := make(map[int]int)
	cams := make(map[int]bool)
	for _, s := range f.samples {
		persons[s.PersonID]++
		cams[s.CamID] = true
	}
	stats := &database.StoreStats{
		Samples: len(f.samples),
		Persons: len(persons),
		Cameras: len(cams),
	}
	if perPerson {
		for pid, n := range persons {
			stats.PerID = append(stats.PerID, database.PersonStats{PersonID: pid, Samples: n})
		}
	}
	return stats, nil
}

// fakeExtractor returns a fixed embedding.
type fakeExtractor struct {
	embedding []float32
	err       error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (*feature.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &feature.Result{
		Embedding: f.embedding,
		Model:     "fake",
		Dim:       len(f.embedding),
	}, nil
}

// postJSON builds a JSON POST request.
func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// postCrop builds a multipart POST with a small JPEG and identity fields.
func postCrop(t *testing.T, path string, personID, camID int) *http.Request {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 16))
	var imgBuf bytes.Buffer
	if err := jpeg.Encode(&imgBuf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "crop.jpg")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	writer.WriteField("person_id", strconv.Itoa(personID))
	writer.WriteField("cam_id", strconv.Itoa(camID))
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func assertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func parseJSONResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("parsing response %q: %v", rec.Body.String(), err)
	}
}
