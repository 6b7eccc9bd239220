package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/internal/oauth"
	"github.com/joshp123/acbridge/internal/oauthflow"
	"github.com/joshp123/acbridge/plugins/samsungac"
)

func oauthMain(args []string) {
	if len(args) == 0 {
		oauthUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "auth-code":
		authCodeCmd(args[1:])
	case "persist":
		persistCmd(args[1:])
	default:
		oauthUsage()
		os.Exit(2)
	}
}

func oauthUsage() {
	fmt.Println("acbridge oauth <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  auth-code --redirect-url <url> [--config <path>] [--bootstrap-file <path>] [--state-path <path>] [--no-open] [--skip-blob] [--json]")
	fmt.Println("  persist --state <path> [--config <path>] [--state-path <path>] [--skip-blob] [--json]")
}

type oauthOutput struct {
	Provider      string `json:"provider"`
	StatePath     string `json:"state_path"`
	BlobPersisted bool   `json:"blob_persisted"`
	Scope         string `json:"scope"`
}

// authCodeCmd runs the SmartThings authorization-code flow and persists the refresh state.
func authCodeCmd(args []string) {
	flags := flag.NewFlagSet("auth-code", flag.ExitOnError)
	redirectURL := flags.String("redirect-url", "", "Redirect URL registered with the SmartApp")
	configPath := flags.String("config", config.DefaultPath, "Path to config.yaml")
	bootstrapFile := flags.String("bootstrap-file", "", "Override bootstrap file path")
	statePath := flags.String("state-path", "", "Override persisted state path")
	noOpen := flags.Bool("no-open", false, "Do not open the browser automatically")
	skipBlob := flags.Bool("skip-blob", false, "Skip blob storage persistence")
	jsonOut := flags.Bool("json", false, "Output JSON to stdout")
	timeout := flags.Duration("timeout", 5*time.Minute, "Timeout for auth flow")
	_ = flags.Parse(args)

	if *redirectURL == "" {
		oauthUsage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("oauth", err)
	}

	decl := samsungac.Plugin{}.OAuthDeclaration()
	path := *bootstrapFile
	if path == "" && cfg.SmartThings.OAuth != nil {
		path = cfg.SmartThings.OAuth.BootstrapFile
	}
	if path == "" {
		fatal("oauth", fmt.Errorf("smartthings.oauth.bootstrap_file is required in config or via --bootstrap-file"))
	}
	bootstrap, err := oauth.LoadBootstrap(path)
	if err != nil {
		fatal("oauth", err)
	}

	conf := oauth.OAuth2Config(decl, bootstrap.ClientID, bootstrap.ClientSecret, *redirectURL)

	state, err := randomState(16)
	if err != nil {
		fatal("oauth", err)
	}

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	printAuthPrompt(*jsonOut, "Open this URL to authorize:", authURL, "")
	if !*noOpen {
		_ = openBrowser(authURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	code, err := waitForAuthCode(ctx, *redirectURL, state, *jsonOut)
	if err != nil {
		fatal("oauth", err)
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		fatal("oauth", err)
	}
	if token.RefreshToken == "" {
		fatal("oauth", fmt.Errorf("no refresh_token returned; check scope and redirect URL"))
	}

	output, err := persistState(ctx, cfg, decl, oauth.NewState(bootstrap, decl.Scope(), token), *statePath, *skipBlob)
	if err != nil {
		fatal("oauth", err)
	}
	emitOAuthOutput(output, *jsonOut)
}

func persistState(ctx context.Context, cfg *config.Config, decl oauth.Declaration, state oauth.State, override string, skipBlob bool) (oauthOutput, error) {
	output := oauthOutput{Provider: decl.Provider, Scope: state.Scope}

	var blob oauth.BlobStore
	if !skipBlob {
		store, err := oauthflow.BlobFromConfig(cfg)
		if err != nil {
			return output, err
		}
		blob = store
	}

	result, err := oauthflow.PersistState(ctx, cfg, decl, state, blob, oauthflow.PersistOptions{
		StatePathOverride: override,
		SkipBlob:          skipBlob,
	})
	output.StatePath = result.StatePath
	output.BlobPersisted = result.BlobSaved
	return output, err
}

// persistCmd re-persists an existing state file, e.g. one written with --skip-blob.
func persistCmd(args []string) {
	flags := flag.NewFlagSet("persist", flag.ExitOnError)
	source := flags.String("state", "", "Path to an OAuth state file")
	configPath := flags.String("config", config.DefaultPath, "Path to config.yaml")
	statePath := flags.String("state-path", "", "Override persisted state path")
	skipBlob := flags.Bool("skip-blob", false, "Skip blob storage persistence")
	jsonOut := flags.Bool("json", false, "Output JSON to stdout")
	_ = flags.Parse(args)

	if *source == "" {
		oauthUsage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("oauth", err)
	}
	state, err := oauth.LoadState(*source)
	if err != nil {
		fatal("oauth", err)
	}

	output, err := persistState(context.Background(), cfg, samsungac.Plugin{}.OAuthDeclaration(), state, *statePath, *skipBlob)
	if err != nil {
		fatal("oauth", err)
	}
	emitOAuthOutput(output, *jsonOut)
}

func emitOAuthOutput(output oauthOutput, jsonOut bool) {
	if jsonOut {
		payload, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			fatal("oauth", err)
		}
		fmt.Fprintln(os.Stdout, string(payload))
		return
	}
	fmt.Printf("State file: %s\n", output.StatePath)
	fmt.Printf("Blob persisted: %t\n", output.BlobPersisted)
}

func waitForAuthCode(ctx context.Context, redirectURL, state string, jsonOut bool) (string, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}

	if isLoopback(parsed.Hostname()) && parsed.Scheme == "http" && parsed.Host != "" {
		code, err := listenForAuthCode(ctx, parsed, state)
		if err == nil {
			return code, nil
		}
		printAuthPrompt(jsonOut, fmt.Sprintf("Warning: failed to listen for callback, falling back to manual paste: %v", err))
	}

	if jsonOut {
		fmt.Fprint(os.Stderr, "Paste the authorization code (or full redirect URL): ")
	} else {
		fmt.Print("Paste the authorization code (or full redirect URL): ")
	}
	return readCode(os.Stdin)
}

func listenForAuthCode(ctx context.Context, redirect *url.URL, state string) (string, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Addr:    redirect.Host,
		Handler: callbackHandler(redirect.Path, state, codeCh, errCh),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		_ = srv.Close()
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("authorization timed out")
	case err := <-errCh:
		return "", err
	case code := <-codeCh:
		return code, nil
	}
}

func callbackHandler(path, state string, codeCh chan<- string, errCh chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if path != "" && r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query()
		if errStr := query.Get("error"); errStr != "" {
			errCh <- fmt.Errorf("authorization error: %s", errStr)
			_, _ = w.Write([]byte("Authorization failed. You can close this window."))
			return
		}
		if got := query.Get("state"); got != "" && got != state {
			errCh <- fmt.Errorf("state mismatch")
			_, _ = w.Write([]byte("State mismatch. You can close this window."))
			return
		}
		code := query.Get("code")
		if code == "" {
			errCh <- fmt.Errorf("missing code in callback")
			_, _ = w.Write([]byte("Missing authorization code. You can close this window."))
			return
		}
		codeCh <- code
		_, _ = w.Write([]byte("Authorization received. You can close this window."))
	}
}

// readCode accepts either a bare code or the full redirect URL.
func readCode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no code provided")
	}

	if parsed, err := url.Parse(line); err == nil && parsed.Query().Get("code") != "" {
		return parsed.Query().Get("code"), nil
	}
	return line, nil
}

func printAuthPrompt(jsonOut bool, lines ...string) {
	out := os.Stdout
	if jsonOut {
		out = os.Stderr
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "linux":
		return exec.Command("xdg-open", target).Start()
	default:
		return nil
	}
}

func randomState(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
