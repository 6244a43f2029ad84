package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/analytics"
	"github.com/MardaxTech/DriveTransferCode/internal/auth"
	"github.com/MardaxTech/DriveTransferCode/internal/codehandlers"
	"github.com/MardaxTech/DriveTransferCode/internal/drive"
	"github.com/MardaxTech/DriveTransferCode/internal/handlers"
	"github.com/MardaxTech/DriveTransferCode/internal/oauth"
	"github.com/MardaxTech/DriveTransferCode/internal/registry"
	"github.com/MardaxTech/DriveTransferCode/internal/store"
	"github.com/MardaxTech/DriveTransferCode/internal/transfer"

	"github.com/joho/godotenv"
)

func main() {
	// Load env vars
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Check required env vars
	required := []string{"MONGO_URI", "JWT_SECRET", "TOKEN_ENC_KEY", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "BASE_URL"}
	for _, k := range required {
		if os.Getenv(k) == "" {
			log.Fatalf("env %s is required", k)
		}
	}

	// Initialize store (Mongo)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.InitStore(ctx); err != nil {
		log.Fatalf("init store: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.DisconnectStore(ctx); err != nil {
			log.Printf("disconnect store: %v", err)
		}
	}()

	auth.InitAuth()
	oauth.InitOAuthConfig()

	// Wire the transfer service
	driveClient := drive.New()
	tokens := oauth.NewTokenProvider()
	codeRegistry := registry.New(oauth.TokenCipher())
	events := analytics.NewFromEnv()
	svc := transfer.NewService(codeRegistry, driveClient, tokens, events)

	codeH := codehandlers.New(svc, driveClient, oauth.TokenCipher())
	driveH := handlers.New(tokens, driveClient)

	// Setup routes
	mux := http.NewServeMux()

	// Authentication routes
	mux.HandleFunc("/api/signup", requireMethod("POST", auth.SignupHandler))
	mux.HandleFunc("/api/login", requireMethod("POST", auth.LoginHandler))

	// Drive OAuth routes
	mux.HandleFunc("/api/drive/link", auth.AuthMiddleware(requireMethod("GET", oauth.DriveLinkHandler)))
	mux.HandleFunc("/api/drive/account", auth.AuthMiddleware(requireMethod("GET", driveH.DriveAccount)))
	mux.HandleFunc("/api/drive/space", auth.AuthMiddleware(requireMethod("GET", driveH.DriveSpace)))

	// Transfer code routes
	mux.HandleFunc("/api/codes/upload", auth.AuthMiddleware(requireMethod("POST", codeH.UploadCode)))
	mux.HandleFunc("/api/codes/share", auth.AuthMiddleware(requireMethod("POST", codeH.ShareCode)))
	mux.HandleFunc("/api/codes/use", requireMethod("POST", codeH.UseCode))
	mux.HandleFunc("/api/codes/use/upload", requireMethod("POST", codeH.UseCodeUpload))

	// OAuth callback (no auth header; state validated via DB)
	mux.HandleFunc("/oauth2/callback", requireMethod("GET", oauth.OauthCallbackHandler))

	// OAuth completion page
	mux.HandleFunc("/oauth/finished", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<h1>OAuth flow completed</h1><p>You can close this window and return to the application.</p>"))
	})

	addr := ":8080"
	fmt.Printf("Starting server on %s\n", addr)
	if err := http.ListenAndServe(addr, logRequest(mux)); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func requireMethod(verb string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != verb {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s from %s\n", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
