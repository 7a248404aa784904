package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"launchpad/internal/config"
	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	BasePath       string
	Auth           AuthConfig
	AllowedOrigins []string
	RateLimit      config.RateLimitConfig
	// DevLogin exposes POST /auth/dev/login, which mints tokens without a password.
	DevLogin bool
	Log      *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"contract is not awaiting signatures"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type bodyOf[T any] struct {
	Body T
}

func reply[T any](v T) *bodyOf[T] {
	return &bodyOf[T]{Body: v}
}

// New returns an HTTP handler exposing the launchpad API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		code := ""
		if status == http.StatusBadRequest {
			code = string(domain.KindInvalidArgument)
		}
		return newAPIError(status, code, msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(rateLimitMiddleware(cfg.RateLimit))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Launchpad API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	if cfg.DevLogin {
		registerDevAuth(group, cfg.Engine, cfg.Auth)
	}
	registerContracts(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerWorkspace(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerOpenAPI(router, api, basePath, cfg.DevLogin)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotLinked:
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

// handleError maps workflow errors onto the envelope. Anything without a
// domain kind is reported as an opaque 500 and its cause is logged.
func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return newAPIError(statusForKind(de.Kind), string(de.Kind), de.Message, de.Details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	if info := requestInfoFrom(ctx); info != nil {
		info.err = err
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, devLogin bool) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath, devLogin)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string, devLogin bool) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{path.Join("/", basePath, "health"): true}
	if devLogin {
		public[path.Join("/", basePath, "auth/dev/login")] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Launchpad API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user and workspace tier",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[MeResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		p, _ := principalFromContext(ctx)
		resp := MeResponse{
			UserID:     actor.UserID,
			Username:   actor.Username,
			Role:       string(actor.Role),
			Tier:       actor.Tier.String(),
			AuthSource: p.Source,
		}
		if actor.WorkspaceID != "" {
			ws := actor.WorkspaceID
			resp.WorkspaceID = &ws
		}
		return reply(resp), nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest
	}) (*bodyOf[DevLoginResponse], error) {
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "invalid_argument", "user_id is required", nil)
		}
		if _, err := e.GetUser(ctx, userID); err != nil {
			return nil, handleError(ctx, err)
		}
		token, err := signDevToken(authCfg.JWTSecret, userID, devTokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(DevLoginResponse{Token: token}), nil
	})
}

func registerContracts(api huma.API, e engine.Engine) {
	type idPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/contracts",
		Summary:       "Create a draft contract",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateContractRequest
	}) (*bodyOf[domain.Contract], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		c, err := e.CreateContract(ctx, actor, engine.ContractCreateOptions{
			Title:    input.Body.Title,
			Template: input.Body.Template,
			Content:  input.Body.Content,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "Contracts created by or sent to the caller",
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[listResponse[domain.Contract]], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		items, err := e.ListMyContracts(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(listOf(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}",
		Summary:     "Contract with its signatures",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*bodyOf[ContractDetailResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		d, err := e.GetContractDetail(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(contractDetailResponse(d)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contract-signatures",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}/signatures",
		Summary:     "Signature rows of a contract",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*bodyOf[listResponse[domain.Signature]], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		d, err := e.GetContractDetail(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(listOf(d.Signatures)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-contract",
		Method:      http.MethodPatch,
		Path:        "/contracts/{id}",
		Summary:     "Edit a draft contract",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateContractRequest
	}) (*bodyOf[domain.Contract], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		c, err := e.UpdateContract(ctx, actor, input.ID, engine.ContractPatch{
			Title:    input.Body.Title,
			Template: input.Body.Template,
			Content:  input.Body.Content,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/send",
		Summary:     "Send a draft contract to its signing parties",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SendContractRequest
	}) (*bodyOf[ContractDetailResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		d, err := e.SendContract(ctx, actor, input.ID, input.Body.PartyIDs)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(contractDetailResponse(d)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sign-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/sign",
		Summary:     "Sign a sent contract",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *idPath) (*bodyOf[ContractDetailResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		d, err := e.SignContract(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(contractDetailResponse(d)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/reject",
		Summary:     "Reject a sent contract, cancelling it",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *idPath) (*bodyOf[ContractDetailResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		d, err := e.RejectContract(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(contractDetailResponse(d)), nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task in the caller's workspace",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusPreconditionFailed,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest
	}) (*bodyOf[domain.Task], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		t, err := e.CreateTask(ctx, actor, engine.TaskCreateOptions{
			Title:            input.Body.Title,
			Description:      stringOrEmpty(input.Body.Description),
			Priority:         stringOrEmpty(input.Body.Priority),
			DueDate:          stringOrEmpty(input.Body.DueDate),
			AssigneeUsername: stringOrEmpty(input.Body.AssigneeUsername),
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "Tasks visible to the caller",
		Errors:      []int{http.StatusPreconditionFailed},
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[listResponse[domain.Task]], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		items, err := e.ListTasks(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(listOf(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*bodyOf[domain.Task], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		t, err := e.GetTask(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task fields or status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusPreconditionFailed,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateTaskRequest
	}) (*bodyOf[domain.Task], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		t, err := e.UpdateTask(ctx, actor, input.ID, engine.TaskPatch{
			Title:            input.Body.Title,
			Description:      input.Body.Description,
			Status:           input.Body.Status,
			Priority:         input.Body.Priority,
			DueDate:          input.Body.DueDate,
			AssigneeUsername: input.Body.AssigneeUsername,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteTask(ctx, actor, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return nil, nil
	})
}

func registerWorkspace(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspace",
		Summary:       "Create the caller's startup workspace",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest
	}) (*bodyOf[domain.Workspace], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		ws, err := e.CreateWorkspace(ctx, actor, input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(ws), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspace",
		Summary:     "The caller's effective workspace",
		Errors:      []int{http.StatusPreconditionFailed},
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[domain.Workspace], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		ws, err := e.GetWorkspace(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(ws), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rotate-join-code",
		Method:      http.MethodPost,
		Path:        "/workspace/join-code",
		Summary:     "Generate a new join code",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[JoinCodeResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		code, err := e.RotateJoinCode(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(JoinCodeResponse{JoinCode: code}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-workspace",
		Method:      http.MethodPost,
		Path:        "/workspace/join",
		Summary:     "Join a workspace with its code",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body JoinWorkspaceRequest
	}) (*bodyOf[domain.Workspace], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		ws, err := e.JoinWorkspace(ctx, actor, input.Body.JoinCode)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(ws), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/workspace/members",
		Summary:     "Owner and members of the caller's workspace",
		Errors:      []int{http.StatusPreconditionFailed},
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[listResponse[domain.User]], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		items, err := e.ListMembers(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(listOf(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-score",
		Method:      http.MethodGet,
		Path:        "/workspace/score",
		Summary:     "Workspace score total",
		Errors:      []int{http.StatusPreconditionFailed},
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[ScoreResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		s, err := e.GetScore(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(ScoreResponse{WorkspaceID: s.WorkspaceID, Total: s.Total}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-score-events",
		Method:      http.MethodGet,
		Path:        "/workspace/score/events",
		Summary:     "Score ledger, newest first",
		Errors:      []int{http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*bodyOf[listResponse[domain.ScoreEvent]], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		items, err := e.ListScoreEvents(ctx, actor, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(listOf(items)), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit events of the caller's workspace",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*bodyOf[paginatedEvents], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "invalid_argument", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, actor, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "The caller's notifications, newest first",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" default:"50"`
	}) (*bodyOf[listResponse[domain.Notification]], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		items, err := e.ListNotifications(ctx, actor, input.Unread, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(listOf(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-notification-read",
		Method:        http.MethodPost,
		Path:          "/notifications/{id}/read",
		Summary:       "Mark one notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := e.MarkNotificationRead(ctx, actor, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark every notification read",
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[MarkAllReadResponse], error) {
		actor, err := actorFromRequest(ctx, e)
		if err != nil {
			return nil, err
		}
		n, err := e.MarkAllNotificationsRead(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(MarkAllReadResponse{Updated: n}), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
