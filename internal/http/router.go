package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"meetscribe/internal/handlers"
	"meetscribe/internal/objectstore"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/search"
	"meetscribe/internal/storage"
	"meetscribe/internal/stt"
	"meetscribe/internal/upload"
	"meetscribe/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB            *sql.DB
	Sessions      storage.SessionStore
	Meetings      storage.MeetingStore
	Tasks         storage.TaskStore
	Objects       objectstore.ObjectStore
	UploadManager *upload.Manager
	Transcriber   *pipeline.Transcriber
	Provider      stt.Provider
	Extractor     *pipeline.Extractor
	Recovery      *pipeline.Recovery
	Searcher      *search.Searcher
	VectorStore   vectorstore.VectorStore
	Collection    string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	recordings := handlers.NewRecordingsHandler(deps.UploadManager)
	transcribe := handlers.NewTranscribeHandler(deps.Transcriber, deps.Provider)
	process := handlers.NewProcessHandler(deps.Extractor)
	sweep := handlers.NewSweepHandler(deps.Recovery, deps.Extractor)
	session := handlers.NewSessionHandler(deps.Sessions)
	health := handlers.NewHealthHandler(deps.DB, deps.VectorStore, deps.Collection)
	files := handlers.NewFilesHandler(deps.Objects)
	meetingPage := handlers.NewMeetingPageHandler(deps.Meetings, deps.Tasks)

	r.Route("/api", func(r chi.Router) {
		r.Post("/recordings", recordings.CreateInline)
		r.Post("/recordings/upload", recordings.Upload)
		r.Post("/recordings/create-session", recordings.CreateSession)

		r.Post("/transcribe", transcribe.Submit)
		r.Get("/transcribe", transcribe.Status)
		r.Put("/transcribe", transcribe.Reconcile)

		r.Method(http.MethodPost, "/process-recording", process)
		r.Post("/fix-stuck-transcriptions", sweep.FixStuck)
		r.Post("/process-unprocessed", sweep.ProcessUnprocessed)

		r.Method(http.MethodGet, "/sessions/{sessionID}", session)
		r.Method(http.MethodGet, "/health", health)

		if deps.Searcher != nil {
			r.Method(http.MethodPost, "/search", handlers.NewSearchHandler(deps.Searcher))
		}
	})

	r.Method(http.MethodGet, "/files/*", files)
	r.Method(http.MethodGet, "/meetings/{sessionID}", meetingPage)

	return r
}
