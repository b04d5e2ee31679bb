package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/oauth2"

	"github.com/cadnote/backend/internal/auth"
	"github.com/cadnote/backend/internal/crypto"
	"github.com/cadnote/backend/internal/handler"
	"github.com/cadnote/backend/internal/notes"
	"github.com/cadnote/backend/internal/onshape"
	"github.com/cadnote/backend/internal/secret"
	"github.com/cadnote/backend/internal/session"
	"github.com/cadnote/backend/internal/store"
)

// App holds the dependencies for the Lambda function.
type App struct {
	authHandler      *handler.AuthHandler
	noteHandler      *handler.NoteHandler
	oauthHandler     *handler.OAuthHandler
	proxyHandler     *handler.ProxyHandler
	apiGatewaySecret string
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context) *App {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		panic(fmt.Sprintf("unable to load SDK config, %v", err))
	}

	// DynamoDB Client. DEV_MODE runs entirely on the in-memory store
	// fallbacks, no AWS required.
	var dynamoClient *dynamodb.Client
	if os.Getenv("DEV_MODE") == "true" {
		fmt.Println("Using In-Memory Storage (DEV_MODE=true)")
	} else {
		dynamoClient = dynamodb.NewFromConfig(cfg)
	}

	// KMS Client
	var kmsService crypto.Encryptor
	if os.Getenv("DEV_MODE") == "true" {
		kmsService = crypto.NewMockEncryptor()
		fmt.Println("Using MockEncryptor (DEV_MODE=true)")
	} else {
		kmsClient := kms.NewFromConfig(cfg)
		kmsKeyID := os.Getenv("KMS_KEY_ID")
		if kmsKeyID == "" {
			kmsKeyID = "alias/cadnote-token-key"
		}
		kmsService = crypto.NewKMSService(kmsClient, kmsKeyID)
	}

	// ---------- Secret Resolver ----------
	var resolver secret.Resolver
	if os.Getenv("DEV_MODE") == "true" {
		resolver = secret.NewEnvResolver()
		fmt.Println("Using EnvResolver (DEV_MODE=true)")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(cfg))
		fmt.Println("Using SSMResolver (SSM Parameter Store)")
	}

	// Resolve secrets from SSM Parameter Store (or env vars in DEV_MODE)
	onshapeClientSecretParam := os.Getenv("ONSHAPE_CLIENT_SECRET_PARAM")
	if onshapeClientSecretParam == "" {
		onshapeClientSecretParam = "/cadnote/onshape-client-secret"
	}
	onshapeClientSecret, err := resolver.GetSecret(ctx, onshapeClientSecretParam)
	if err != nil {
		log.Printf("WARNING: failed to resolve ONSHAPE_CLIENT_SECRET: %v", err)
	}

	jwtSecretParam := os.Getenv("JWT_SECRET_PARAM")
	if jwtSecretParam == "" {
		jwtSecretParam = "/cadnote/jwt-secret"
	}
	jwtSecret, err := resolver.GetSecret(ctx, jwtSecretParam)
	if err != nil {
		log.Printf("WARNING: failed to resolve JWT_SECRET: %v", err)
		jwtSecret = "default-dev-secret"
	}

	apiGatewaySecretParam := os.Getenv("API_GATEWAY_SECRET_PARAM")
	if apiGatewaySecretParam == "" {
		apiGatewaySecretParam = "/cadnote/api-gateway-secret"
	}
	apiGatewaySecret, err := resolver.GetSecret(ctx, apiGatewaySecretParam)
	if err != nil {
		log.Printf("WARNING: failed to resolve API_GATEWAY_SECRET: %v", err)
	}

	// OAuth2 Config
	redirectURL := os.Getenv("ONSHAPE_REDIRECT_URL")
	if redirectURL == "" {
		frontendURL := os.Getenv("FRONTEND_URL")
		if frontendURL == "" {
			frontendURL = "http://localhost:3000"
		}
		redirectURL = frontendURL + "/oauthRedirect"
	}

	oauthConfig := &oauth2.Config{
		ClientID:     os.Getenv("ONSHAPE_CLIENT_ID"),
		ClientSecret: onshapeClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"OAuth2Read"},
		Endpoint:     auth.OnshapeEndpoint,
	}
	oauthService := auth.NewOAuthService(oauthConfig)

	// Stores
	users := store.NewUserStore(dynamoClient)
	noteStore := store.NewNoteStore(dynamoClient)
	sessions := session.NewStore(dynamoClient)
	selector := notes.NewSelector(users, noteStore)

	// Onshape API client (override for LocalStack/tests via ONSHAPE_API_URL)
	onshapeClient := onshape.NewClient(os.Getenv("ONSHAPE_API_URL"))

	guard := handler.NewTokenGuard(oauthService, sessions, kmsService)

	return &App{
		authHandler:      handler.NewAuthHandler(users, sessions, guard, jwtSecret),
		noteHandler:      handler.NewNoteHandler(selector, sessions, jwtSecret),
		oauthHandler:     handler.NewOAuthHandler(oauthService, sessions, kmsService, jwtSecret),
		proxyHandler:     handler.NewProxyHandler(guard, onshapeClient, sessions, jwtSecret),
		apiGatewaySecret: apiGatewaySecret,
	}
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	fmt.Printf("Request: %s %s\n", method, path)

	// CORS Preflight
	if method == "OPTIONS" {
		return corsResponse(events.APIGatewayProxyResponse{StatusCode: 204}), nil
	}

	// Security: Verify Request Origin (CloudFront only)
	// Skip check for OPTIONS (preflight) and if DEV_MODE is true
	if os.Getenv("DEV_MODE") != "true" {
		if req.Headers["X-Origin-Verify"] != app.apiGatewaySecret && req.Headers["x-origin-verify"] != app.apiGatewaySecret {
			fmt.Printf("Security Block: Missing or invalid X-Origin-Verify header\n")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	// Router logic
	// Strip /api prefix if present (for CloudFront proxying)
	if strings.HasPrefix(path, "/api") {
		path = strings.TrimPrefix(path, "/api")
	}

	// Account and session
	if path == "/signup" && method == "POST" {
		return corsResponse(must(app.authHandler.Signup(ctx, req))), nil
	}
	if path == "/login" && method == "POST" {
		return corsResponse(must(app.authHandler.Login(ctx, req))), nil
	}
	if path == "/logout" && method == "POST" {
		return corsResponse(must(app.authHandler.Logout(ctx, req))), nil
	}
	if path == "/currentUser" && method == "GET" {
		return corsResponse(must(app.authHandler.CurrentUser(ctx, req))), nil
	}

	// Onshape authorization flow
	if path == "/oauthStart" && method == "GET" {
		return corsResponse(must(app.oauthHandler.Start(ctx, req))), nil
	}
	if (path == "/oauthRedirect" || path == "/oauthCallback") && method == "GET" {
		return corsResponse(must(app.oauthHandler.Callback(ctx, req))), nil
	}

	// Notes
	if path == "/notes" && method == "GET" {
		return corsResponse(must(app.noteHandler.GetNote(ctx, req))), nil
	}
	if path == "/notes" && method == "POST" {
		return corsResponse(must(app.noteHandler.SaveNote(ctx, req))), nil
	}
	if path == "/notes/new" && method == "POST" {
		return corsResponse(must(app.noteHandler.NewNote(ctx, req))), nil
	}
	if path == "/notes" && method == "DELETE" {
		return corsResponse(must(app.noteHandler.DeleteNotes(ctx, req))), nil
	}
	if path == "/documents" && method == "GET" {
		return corsResponse(must(app.noteHandler.ListNotes(ctx, req))), nil
	}

	// Onshape data proxy
	if method == "GET" {
		switch path {
		case "/assemblydata":
			return corsResponse(must(app.proxyHandler.AssemblyData(ctx, req))), nil
		case "/gltf-model":
			return corsResponse(must(app.proxyHandler.GltfModel(ctx, req))), nil
		case "/exploded-config":
			return corsResponse(must(app.proxyHandler.ExplodedConfig(ctx, req))), nil
		case "/mates":
			return corsResponse(must(app.proxyHandler.Mates(ctx, req))), nil
		case "/listDocuments":
			return corsResponse(must(app.proxyHandler.ListDocuments(ctx, req))), nil
		}
	}

	return corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = os.Getenv("FRONTEND_URL")
	if resp.Headers["Access-Control-Allow-Origin"] == "" {
		resp.Headers["Access-Control-Allow-Origin"] = "http://localhost:3000"
	}
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// must unwraps a handler response, ignoring the error.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		fmt.Printf("Handler error: %v\n", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
