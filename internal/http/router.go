package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
	"github.com/volunhub/api/internal/service/auth"
	"github.com/volunhub/api/internal/service/dashboard"
	"github.com/volunhub/api/internal/service/events"
	"github.com/volunhub/api/internal/service/lifecycle"
	"github.com/volunhub/api/internal/service/projects"
	"github.com/volunhub/api/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      auth.Service
	projects  projects.Service
	lifecycle lifecycle.Service
	dashboard dashboard.Service
	events    *events.Service
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	dbHealth  func(context.Context) error

	metricsOnce          sync.Once
	metricsInitialized   bool
	requestTotal         *prometheus.CounterVec
	requestLatency       *prometheus.HistogramVec
	rateLimitHits        *prometheus.CounterVec
	applicationDecisions *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitPublic    = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
	heartbeatInterval  = 25 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, projectSvc projects.Service, lifecycleSvc lifecycle.Service, dashboardSvc dashboard.Service, eventSvc *events.Service, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      authSvc,
		projects:  projectSvc,
		lifecycle: lifecycleSvc,
		dashboard: dashboardSvc,
		events:    eventSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/projects", r.audit("/projects", r.handleProjects))
	r.mux.HandleFunc("/projects/", r.audit("/projects/{id}", r.handleProjectByID))
	r.mux.HandleFunc("/applications", r.audit("/applications", r.handlerAuthRate("/applications", rateLimitUserWrite, rateWindowDefault, r.handleApply)))
	r.mux.HandleFunc("/applications/", r.audit("/applications/{id}", r.handleApplicationSubroutes))
	r.mux.HandleFunc("/dashboard/organizer", r.audit("/dashboard/organizer", r.handlerAuthRate("/dashboard/organizer", rateLimitUserRead, rateWindowDefault, r.handleOrganizerDashboard)))
	r.mux.HandleFunc("/dashboard/volunteer", r.audit("/dashboard/volunteer", r.handlerAuthRate("/dashboard/volunteer", rateLimitUserRead, rateWindowDefault, r.handleVolunteerDashboard)))
	r.mux.HandleFunc("/ws/events", r.audit("/ws/events", r.handlerAuthRate("/ws/events", rateLimitWebsocket, rateWindowRealtime, r.handleEventsWS)))
	r.mux.HandleFunc("/events/stream", r.audit("/events/stream", r.handlerAuthRate("/events/stream", rateLimitWebsocket, rateWindowRealtime, r.handleEventsSSE)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Username, payload.Email, payload.Password, domain.Role(payload.Role))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "account created", map[string]any{
		"user":   toUserResponse(user),
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Login    string `json:"login"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	login := payload.Login
	if login == "" {
		login = payload.Username
	}
	if login == "" {
		login = payload.Email
	}
	user, tokens, err := r.auth.Login(req.Context(), login, payload.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "login successful", map[string]any{
		"user":   toUserResponse(user),
		"tokens": tokens,
	})
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.withRateLimit("/projects", rateLimitPublic, rateWindowDefault, rateLimitKeyIP, r.handleListProjects)(w, req)
	case http.MethodPost:
		r.handlerAuthRate("/projects", rateLimitUserWrite, rateWindowDefault, r.handleCreateProject)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleListProjects(w http.ResponseWriter, req *http.Request) {
	filter, err := parseProjectFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := r.projects.List(req.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"projects": toProjectResponses(page.Projects),
		"meta": pageMeta{
			Total: page.Total,
			Page:  page.Page,
			Limit: page.Limit,
			Pages: page.Pages,
		},
	})
}

type projectPayload struct {
	Title               string     `json:"title"`
	OrganizerName       string     `json:"organizer_name"`
	Location            string     `json:"location"`
	Description         string     `json:"description"`
	RequiredSkills      []string   `json:"required_skills"`
	TimeCommitment      string     `json:"time_commitment"`
	StartDate           *time.Time `json:"start_date"`
	ApplicationDeadline *time.Time `json:"application_deadline"`
	MaxVolunteers       *int       `json:"max_volunteers"`
	ContactEmail        string     `json:"contact_email"`
	Category            string     `json:"category"`
}

func (r *Router) handleCreateProject(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	var payload projectPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := projects.CreateInput{
		Title:          payload.Title,
		OrganizerName:  payload.OrganizerName,
		Location:       payload.Location,
		Description:    payload.Description,
		RequiredSkills: payload.RequiredSkills,
		TimeCommitment: payload.TimeCommitment,
		ContactEmail:   payload.ContactEmail,
		Category:       payload.Category,
	}
	if payload.StartDate != nil {
		input.StartDate = *payload.StartDate
	}
	if payload.ApplicationDeadline != nil {
		input.ApplicationDeadline = *payload.ApplicationDeadline
	}
	if payload.MaxVolunteers != nil {
		input.MaxVolunteers = *payload.MaxVolunteers
	}
	project, err := r.projects.Create(req.Context(), info.User, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "project created", toProjectResponse(project))
}

func (r *Router) handleProjectByID(w http.ResponseWriter, req *http.Request) {
	projectID := strings.TrimPrefix(req.URL.Path, "/projects/")
	if projectID == "" || strings.Contains(projectID, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.withRateLimit("/projects/{id}", rateLimitPublic, rateWindowDefault, rateLimitKeyIP, func(w http.ResponseWriter, req *http.Request) {
			r.handleGetProject(w, req, projectID)
		})(w, req)
	case http.MethodPut:
		r.handlerAuthRate("/projects/{id}", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleUpdateProject(w, req, projectID)
		})(w, req)
	case http.MethodDelete:
		r.handlerAuthRate("/projects/{id}", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleDeleteProject(w, req, projectID)
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleGetProject(w http.ResponseWriter, req *http.Request, projectID string) {
	project, err := r.projects.Get(req.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toProjectResponse(project))
}

func (r *Router) handleUpdateProject(w http.ResponseWriter, req *http.Request, projectID string) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	var payload struct {
		Title               *string               `json:"title"`
		OrganizerName       *string               `json:"organizer_name"`
		Location            *string               `json:"location"`
		Description         *string               `json:"description"`
		RequiredSkills      *[]string             `json:"required_skills"`
		TimeCommitment      *string               `json:"time_commitment"`
		StartDate           *time.Time            `json:"start_date"`
		ApplicationDeadline *time.Time            `json:"application_deadline"`
		Status              *domain.ProjectStatus `json:"status"`
		MaxVolunteers       *int                  `json:"max_volunteers"`
		ContactEmail        *string               `json:"contact_email"`
		Category            *string               `json:"category"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := projects.UpdateInput{
		Title:               payload.Title,
		OrganizerName:       payload.OrganizerName,
		Location:            payload.Location,
		Description:         payload.Description,
		RequiredSkills:      payload.RequiredSkills,
		TimeCommitment:      payload.TimeCommitment,
		StartDate:           payload.StartDate,
		ApplicationDeadline: payload.ApplicationDeadline,
		Status:              payload.Status,
		MaxVolunteers:       payload.MaxVolunteers,
		ContactEmail:        payload.ContactEmail,
		Category:            payload.Category,
	}
	project, err := r.projects.Update(req.Context(), info.UserID, projectID, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "project updated", toProjectResponse(project))
}

func (r *Router) handleDeleteProject(w http.ResponseWriter, req *http.Request, projectID string) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	if err := r.projects.Delete(req.Context(), info.UserID, projectID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "project deleted", nil)
}

func (r *Router) handleApply(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	var payload struct {
		ProjectID    string   `json:"project_id"`
		Notes        string   `json:"notes"`
		Skills       []string `json:"skills"`
		Availability string   `json:"availability"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.ProjectID) == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	app, reactivated, err := r.lifecycle.Apply(req.Context(), info.UserID, info.Role, payload.ProjectID, lifecycle.ApplyInput{
		Notes:        payload.Notes,
		Skills:       payload.Skills,
		Availability: payload.Availability,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	message := "application submitted"
	if reactivated {
		message = "application resubmitted"
	}
	writeSuccess(w, http.StatusCreated, message, toApplicationResponse(app))
}

func (r *Router) handleApplicationSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/applications/")
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) == 1 && parts[0] == "volunteer":
		r.handlerAuthRate("/applications/volunteer", rateLimitUserRead, rateWindowDefault, r.handleVolunteerApplications)(w, req)
	case len(parts) == 2 && parts[0] == "project" && parts[1] != "":
		projectID := parts[1]
		r.handlerAuthRate("/applications/project/{id}", rateLimitUserRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleProjectApplications(w, req, projectID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "withdraw" && parts[0] != "":
		applicationID := parts[0]
		r.handlerAuthRate("/applications/{id}/withdraw", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleWithdraw(w, req, applicationID)
		})(w, req)
	case len(parts) == 1 && parts[0] != "":
		applicationID := parts[0]
		r.handlerAuthRate("/applications/{id}", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleDecide(w, req, applicationID)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleVolunteerApplications(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	page, limit := queryPage(req)
	result, err := r.lifecycle.ListForVolunteer(req.Context(), info.UserID, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"applications": toVolunteerApplicationResponses(result.Items),
		"meta": pageMeta{
			Total: result.Total,
			Page:  result.Page,
			Limit: result.Limit,
			Pages: result.Pages,
		},
	})
}

func (r *Router) handleProjectApplications(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	page, limit := queryPage(req)
	result, err := r.lifecycle.ListForProject(req.Context(), info.UserID, projectID, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"applications": toProjectApplicationResponses(result.Items),
		"meta": pageMeta{
			Total: result.Total,
			Page:  result.Page,
			Limit: result.Limit,
			Pages: result.Pages,
		},
	})
}

func (r *Router) handleWithdraw(w http.ResponseWriter, req *http.Request, applicationID string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	app, err := r.lifecycle.Withdraw(req.Context(), info.UserID, applicationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "application withdrawn", toApplicationResponse(app))
}

func (r *Router) handleDecide(w http.ResponseWriter, req *http.Request, applicationID string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	var payload struct {
		Status   string `json:"status"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	app, err := r.lifecycle.Decide(req.Context(), info.UserID, applicationID, lifecycle.Decision(payload.Status), payload.Feedback)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	r.recordDecision(string(app.Status))
	writeSuccess(w, http.StatusOK, "application "+string(app.Status), toApplicationResponse(app))
}

func (r *Router) handleOrganizerDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	if info.Role != domain.RoleOrganizer {
		writeError(w, http.StatusForbidden, "organizer role required")
		return
	}
	result, err := r.dashboard.Organizer(req.Context(), info.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", result)
}

func (r *Router) handleVolunteerDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	if info.Role != domain.RoleVolunteer {
		writeError(w, http.StatusForbidden, "volunteer role required")
		return
	}
	page, limit := queryPage(req)
	result, err := r.dashboard.Volunteer(req.Context(), info.UserID, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", result)
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	if info.Role != domain.RoleOrganizer {
		writeError(w, http.StatusForbidden, "organizer role required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn)
	r.events.Subscribe(info.UserID, client)
	go func() {
		<-client.Done()
		r.events.Unsubscribe(info.UserID, client)
	}()
}

func (r *Router) handleEventsSSE(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	if info.Role != domain.RoleOrganizer {
		writeError(w, http.StatusForbidden, "organizer role required")
		return
	}
	client, err := ws.NewSSEClient(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.events.Subscribe(info.UserID, client)
	defer func() {
		r.events.Unsubscribe(info.UserID, client)
		client.Close()
	}()
	go client.Heartbeat(heartbeatInterval)
	select {
	case <-req.Context().Done():
	case <-client.Done():
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// parseProjectFilter reads listing filters from the query string.
func parseProjectFilter(req *http.Request) (repository.ProjectFilter, error) {
	q := req.URL.Query()
	filter := repository.ProjectFilter{
		Status:      domain.ProjectStatus(strings.TrimSpace(q.Get("status"))),
		Location:    strings.TrimSpace(q.Get("location")),
		Category:    strings.TrimSpace(q.Get("category")),
		OrganizerID: strings.TrimSpace(q.Get("organizer_id")),
		Search:      strings.TrimSpace(q.Get("search")),
	}
	// sort takes the form "field" or "field:dir".
	if sort := strings.TrimSpace(q.Get("sort")); sort != "" {
		field, dir, _ := strings.Cut(sort, ":")
		filter.SortField = strings.TrimSpace(field)
		filter.SortDesc = strings.EqualFold(strings.TrimSpace(dir), "desc")
	}
	if skills := strings.TrimSpace(q.Get("skills")); skills != "" {
		for _, skill := range strings.Split(skills, ",") {
			if s := strings.TrimSpace(skill); s != "" {
				filter.Skills = append(filter.Skills, s)
			}
		}
	}
	for name, target := range map[string]**time.Time{"start_from": &filter.StartFrom, "start_to": &filter.StartTo} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			return filter, errors.New(name + " must be a date (YYYY-MM-DD) or RFC3339 timestamp")
		}
		*target = &parsed
	}
	filter.Page, filter.Limit = queryPage(req)
	return filter, nil
}

func queryPage(req *http.Request) (int, int) {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	return page, limit
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = string(info.Role)
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) missingAuthContext(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
