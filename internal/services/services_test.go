package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/croppulse/internal/assistant"
	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/community"
	"github.com/Lllllllleong/croppulse/internal/fertilizer"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/imaging"
	"github.com/Lllllllleong/croppulse/internal/inference"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/report"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

var grower = auth.Session{UserID: "u1", Email: "u1@example.com"}

var blightQuestions = []string{"Are there concentric rings on the leaves?", "Are the lower leaves affected first?"}

func photo(t *testing.T) []byte {
	t.Helper()
	img, err := imaging.Blank(400, 300)
	require.NoError(t, err)
	return img.Data
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{community.ErrEmptyPost, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", triage.ErrUnanswered), http.StatusBadRequest},
		{triage.ErrUnknownTarget, http.StatusBadRequest},
		{fmt.Errorf("%w: no header", auth.ErrUnauthenticated), http.StatusUnauthorized},
		{community.ErrNotAuthor, http.StatusForbidden},
		{fertilizer.ErrNotOwner, http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{errors.New("firestore unavailable"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code, msg := statusFor(tt.err)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, msg)
		})
	}

	_, msg := statusFor(fmt.Errorf("delete post-1: %w", community.ErrNotAuthor))
	assert.Equal(t, "You can only delete your own posts", msg)
	_, msg = statusFor(errors.New("secret internals"))
	assert.NotContains(t, msg, "secret")
}

func newPredictor(st *memStore, c *fakeClassifier, s *fakeSaver) *PredictorFunction {
	return &PredictorFunction{
		acquirer:   imaging.NewAcquirer(),
		classifier: c,
		questions:  &triage.QuestionResolver{Store: st},
		images:     s,
	}
}

func TestPredictor_Process(t *testing.T) {
	st := newMemStore()
	st.questionSets["Early Blight/tomato"] = blightQuestions
	c := &fakeClassifier{pred: &models.Prediction{Disease: "Early Blight", Confidence: 91}}
	s := &fakeSaver{}
	f := newPredictor(st, c, s)

	res, err := f.Process(context.Background(), grower, " Tomato ", imaging.PickResult{Name: "leaf.jpg", Data: photo(t)})
	require.NoError(t, err)
	assert.Equal(t, "tomato", res.PlantType)
	assert.Equal(t, "tomato", c.got)
	assert.Equal(t, "Early Blight", res.Prediction.Disease)
	assert.Equal(t, blightQuestions, res.Questions)
	assert.Empty(t, res.QuestionsError)
	assert.True(t, strings.HasPrefix(res.ImageURI, "gs://images/uploads/u1/"))
	assert.Len(t, s.saved, 1)
}

func TestPredictor_ProcessFailures(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	pick := imaging.PickResult{Name: "leaf.jpg", Data: photo(t)}

	f := newPredictor(st, &fakeClassifier{pred: &models.Prediction{Disease: "Rust", Confidence: 70}}, &fakeSaver{err: errors.New("bucket gone")})
	res, err := f.Process(ctx, grower, "", pick)
	require.NoError(t, err, "upload failures are not fatal")
	assert.Empty(t, res.ImageURI)
	assert.Equal(t, triage.DefaultPlantType, res.PlantType)
	assert.Equal(t, triage.DefaultQuestions, res.Questions)

	down := &fakeSaver{}
	f = newPredictor(st, &fakeClassifier{err: errors.New("classifier down")}, down)
	_, err = f.Process(ctx, grower, "corn", pick)
	assert.ErrorContains(t, err, "classifier down")
	assert.Empty(t, down.saved, "nothing is uploaded without a prediction")

	_, err = f.Process(ctx, grower, "banana", pick)
	assert.True(t, models.IsValidation(err))

	_, err = f.Process(ctx, grower, "corn", imaging.PickResult{})
	assert.True(t, models.IsValidation(err))

	_, err = f.Process(ctx, grower, "corn", imaging.PickResult{Data: []byte("not an image")})
	assert.True(t, models.IsValidation(err))

	_, err = f.Process(ctx, auth.Session{}, "corn", pick)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestPredictor_ProcessSendsAndStoresJPEG(t *testing.T) {
	var sent []byte
	var sentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		sent, _ = io.ReadAll(file)
		sentType = header.Header.Get("Content-Type")
		fmt.Fprint(w, `{"predicted_disease":"Apple Scab","confidence":83}`)
	}))
	defer srv.Close()

	s := &fakeSaver{}
	f := &PredictorFunction{
		acquirer:   imaging.NewAcquirer(),
		classifier: inference.NewClient(srv.URL),
		questions:  &triage.QuestionResolver{Store: newMemStore()},
		images:     s,
	}
	res, err := f.Process(context.Background(), grower, "apple", imaging.PickResult{Name: "leaf.png", Data: pngBytes(t, 400, 300)})
	require.NoError(t, err)
	assert.Equal(t, "Apple Scab", res.Prediction.Disease)

	assert.Equal(t, "image/jpeg", sentType)
	require.GreaterOrEqual(t, len(sent), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, sent[:2])

	require.Len(t, s.saved, 1)
	for name, data := range s.saved {
		assert.True(t, strings.HasSuffix(name, ".jpg"))
		assert.Equal(t, sent, data)
	}
}

func TestPredictor_HTTP(t *testing.T) {
	st := newMemStore()
	f := newPredictor(st, &fakeClassifier{pred: &models.Prediction{Disease: "Scab", Confidence: 88}}, &fakeSaver{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "leaf.jpg")
	require.NoError(t, err)
	_, err = fw.Write(photo(t))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("plantType", "apple"))
	require.NoError(t, mw.WriteField("source", "camera"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, withUser(req, "u1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Scab", res.Prediction.Disease)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	f.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func ptr(b bool) *bool { return &b }

func newTriageFunction(st *memStore, trigger WorkflowTrigger) *TriageFunction {
	return &TriageFunction{
		questions:  &triage.QuestionResolver{Store: st},
		treatments: &triage.TreatmentResolver{Store: st},
		writer:     triage.NewWriter(st),
		trigger:    trigger,
	}
}

func TestTriage_Submit(t *testing.T) {
	st := newMemStore()
	st.questionSets["Early Blight/tomato"] = blightQuestions
	st.treatments["Early Blight/tomato"] = []string{"Remove infected leaves", "Apply fungicide"}
	trig := &fakeTrigger{}
	f := newTriageFunction(st, trig)
	ctx := context.Background()

	req := &models.SubmitTriageRequest{
		PlantType:  "tomato",
		Prediction: models.Prediction{Disease: "Early Blight", Confidence: 91},
		Answers:    map[string]*bool{blightQuestions[0]: ptr(true), blightQuestions[1]: nil},
	}
	_, err := f.Submit(ctx, grower, req)
	assert.ErrorIs(t, err, triage.ErrUnanswered)
	assert.Empty(t, st.predictions)

	req.Answers[blightQuestions[1]] = ptr(false)
	req.Answers["Injected question?"] = ptr(true)
	res, err := f.Submit(ctx, grower, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"Remove infected leaves", "Apply fungicide"}, res.Treatments)
	assert.NotEmpty(t, res.ExecutionID)

	require.Contains(t, st.followUps, res.FollowUpID)
	fu := st.followUps[res.FollowUpID]
	assert.Equal(t, res.PredictionID, fu.PredictionID)
	assert.Equal(t, map[string]bool{blightQuestions[0]: true, blightQuestions[1]: false}, fu.Answers)
	assert.Equal(t, models.TriageWorkflowArgs{PredictionID: res.PredictionID, FollowUpID: res.FollowUpID, UserID: "u1"}, trig.payload)
}

func TestTriage_SubmitWorkflowFailureKeepsSave(t *testing.T) {
	st := newMemStore()
	f := newTriageFunction(st, &fakeTrigger{err: errors.New("quota")})

	answers := map[string]*bool{}
	for _, q := range triage.DefaultQuestions {
		answers[q] = ptr(true)
	}
	res, err := f.Submit(context.Background(), grower, &models.SubmitTriageRequest{
		PlantType:  "corn",
		Prediction: models.Prediction{Disease: "Northern Leaf Blight", Confidence: 64},
		Answers:    answers,
	})
	require.NoError(t, err)
	assert.Empty(t, res.ExecutionID)
	assert.Equal(t, triage.NoTreatmentsFound, res.Treatments)
	assert.Len(t, st.predictions, 1)
}

func TestTriage_HTTP(t *testing.T) {
	st := newMemStore()
	st.treatments["Scab/apple"] = []string{"Rake fallen leaves"}
	f := newTriageFunction(st, nil)

	rec := httptest.NewRecorder()
	f.HandleTreatments(rec, withUser(httptest.NewRequest(http.MethodGet, "/?disease=Scab&plantType=apple", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rake fallen leaves")

	rec = httptest.NewRecorder()
	body := `{"plantType":"apple","prediction":{"predicted_disease":"Scab","confidence":80},"answers":{}}`
	f.HandleSubmit(rec, withUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), triage.ErrUnanswered.Error())

	rec = httptest.NewRecorder()
	f.HandleSubmit(rec, withUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")), "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type bundles map[string]*triage.Bundle

func (b bundles) Bundle(_ context.Context, _ auth.Session, id string) (*triage.Bundle, error) {
	if v, ok := b[id]; ok {
		return v, nil
	}
	return nil, store.ErrNotFound
}

func TestDispatch(t *testing.T) {
	f := &DispatchFunction{history: bundles{"p1": {
		PlantType: "grape", Disease: "Powdery Mildew", Confidence: 72,
		Questions: []string{"White powder?"}, Answers: map[string]bool{"White powder?": true},
	}}}
	ctx := context.Background()

	h, err := f.Dispatch(ctx, grower, &models.DispatchRequest{Target: "community", PredictionID: "p1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h.Content, "Plant Type: grape\nDisease: Powdery Mildew\nConfidence: 72%\n"))

	live := &models.DispatchRequest{
		Target:     "chat",
		PlantType:  "tomato",
		Prediction: &models.Prediction{Disease: "Early Blight", Confidence: 91},
		Questions:  blightQuestions,
		Answers:    map[string]*bool{blightQuestions[0]: ptr(true)},
	}
	_, err = f.Dispatch(ctx, grower, live)
	assert.ErrorIs(t, err, triage.ErrUnanswered)

	live.Answers[blightQuestions[1]] = ptr(false)
	h, err = f.Dispatch(ctx, grower, live)
	require.NoError(t, err)
	assert.Contains(t, h.Content, "I have a tomato plant diagnosed with Early Blight (91% confidence).")

	live.Target = "email"
	_, err = f.Dispatch(ctx, grower, live)
	assert.ErrorIs(t, err, triage.ErrUnknownTarget)

	_, err = f.Dispatch(ctx, grower, &models.DispatchRequest{Target: "chat", PredictionID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommunity_Routes(t *testing.T) {
	st := newMemStore()
	f := newCommunityFunction(&community.Service{Posts: st, Profiles: st, Replier: replier{}}, &community.Feed{})

	do := func(method, path, body, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if user != "" {
			req = withUser(req, user)
		}
		rec := httptest.NewRecorder()
		f.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/posts", `{"content":"Spots on my vines","tag":"Grape"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var post models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "Try a copper spray.", post.Comments[0].Content)

	rec = do(http.MethodPost, "/posts", `{"content":"  ","tag":"Grape"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post cannot be empty")

	rec = do(http.MethodPost, "/posts/"+post.ID+"/comments", `{"content":"Same here"}`, "u2")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(http.MethodPost, "/posts/"+post.ID+"/comments/1/reactions", `{"reaction":"like"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(http.MethodPost, "/posts/"+post.ID+"/comments/9/reactions", `{"reaction":"like"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/posts?filter=myPosts", "", "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(http.MethodGet, "/posts?filter=newest", "", "u2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodDelete, "/posts/"+post.ID, "", "u2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"You can only delete your own posts"}`, rec.Body.String())
	rec = do(http.MethodDelete, "/posts/"+post.ID, "", "u1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(http.MethodGet, "/posts/"+post.ID, "", "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodGet, "/tags", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type snapshots struct {
	ch chan []*models.Post
}

func (s *snapshots) Next() ([]*models.Post, error) {
	p, ok := <-s.ch
	if !ok {
		return nil, errors.New("listener closed")
	}
	return p, nil
}

func (s *snapshots) Stop() {}

func TestCommunity_FeedStream(t *testing.T) {
	src := &snapshots{ch: make(chan []*models.Post, 1)}
	src.ch <- []*models.Post{{ID: "post-1", Content: "Rust on corn", Tag: "Corn", AuthorID: "u1"}}
	close(src.ch)
	f := newCommunityFunction(&community.Service{}, &community.Feed{
		Watch: func(context.Context) community.SnapshotSource { return src },
	})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/feed", nil), "u1"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: posts\ndata: [{\"id\":\"post-1\"")
	assert.Contains(t, body, "event: error")
}

func TestFertilizer_Calculate(t *testing.T) {
	f := newFertilizerFunction(&fertilizer.Service{})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/calculate", strings.NewReader(`{"crop":"tomato","areaM2":2500}`)), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var got calculation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, fertilizer.Result{Nitrogen: 32.5, Phosphorus: 16.25, Potassium: 32.5}, got.Result)

	rec = httptest.NewRecorder()
	f.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/calculate", strings.NewReader(`{"crop":"tomato","areaM2":0}`)), "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/crops", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bellpepper")
}

type genFn func(context.Context, string) (string, error)

func (g genFn) Generate(ctx context.Context, p string) (string, error) { return g(ctx, p) }

func TestAssistant_HTTP(t *testing.T) {
	f := &AssistantFunction{assistant: &assistant.Assistant{
		Chat: genFn(func(_ context.Context, p string) (string, error) {
			if strings.Contains(p, "fail") {
				return "", errors.New("model overloaded")
			}
			return "Remove affected leaves.", nil
		}),
	}}
	call := func(method, body string) (int, assistant.Message) {
		rec := httptest.NewRecorder()
		f.ServeHTTP(rec, withUser(httptest.NewRequest(method, "/", strings.NewReader(body)), "u1"))
		var m assistant.Message
		_ = json.Unmarshal(rec.Body.Bytes(), &m)
		return rec.Code, m
	}

	code, m := call(http.MethodGet, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, gcp.AssistantWelcome, m.Text)

	code, m = call(http.MethodPost, `{"message":"How do I treat blight?"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Remove affected leaves.", m.Text)

	code, m = call(http.MethodPost, `{"message":"please fail"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, gcp.AssistantErrorReply, m.Text)

	code, _ = call(http.MethodPost, `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

type objects struct {
	data map[string][]byte
	err  error
}

func (o objects) ReadObject(_ context.Context, bucket, object string) ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.data[bucket+"/"+object], nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIntake_Process(t *testing.T) {
	s := &fakeSaver{}
	f := &IntakeFunction{
		raw: objects{data: map[string][]byte{
			"raw/u1/leaf.png": pngBytes(t, 40, 30),
			"raw/u1/junk.png": []byte("nope"),
		}},
		images: s,
		config: IntakeConfig{ImagesBucket: "images"},
	}
	ctx := context.Background()

	require.NoError(t, f.Process(ctx, GCSEvent{Bucket: "raw", Name: "u1/leaf.png", ContentType: "image/png"}))
	require.Contains(t, s.saved, "u1/leaf.jpg")
	_, format, err := image.Decode(bytes.NewReader(s.saved["u1/leaf.jpg"]))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	require.NoError(t, f.Process(ctx, GCSEvent{Bucket: "raw", Name: "u1/junk.png", ContentType: "image/png"}))
	require.NoError(t, f.Process(ctx, GCSEvent{Bucket: "raw", Name: "notes.txt", ContentType: "text/plain"}))
	require.NoError(t, f.Process(ctx, GCSEvent{Bucket: "images", Name: "u1/leaf.jpg", ContentType: "image/jpeg"}))
	assert.Len(t, s.saved, 1)

	f.raw = objects{err: errors.New("permission denied")}
	assert.Error(t, f.Process(ctx, GCSEvent{Bucket: "raw", Name: "u1/leaf.png"}))
}

func TestNormalizedName(t *testing.T) {
	assert.Equal(t, "u1/leaf.jpg", NormalizedName("u1/leaf.PNG"))
	assert.Equal(t, "u1/leaf.jpg", NormalizedName("u1/leaf"))
	assert.Equal(t, "a.b/c.jpg", NormalizedName("a.b/c.webp"))
}

func TestReport_HTTPValidation(t *testing.T) {
	f := &ReportFunction{exporter: &report.Exporter{}}
	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing id", http.MethodPost, `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.ServeHTTP(rec, withUser(httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body)), "u1"))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
