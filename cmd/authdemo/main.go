// authdemo exercises the session manager end to end against a real identity
// provider: login, logout, token inspection and a watch mode that mirrors
// the mobile app's foreground revalidation loop.
//
// Usage:
//
//	authdemo login     run the interactive browser flow and persist the session
//	authdemo logout    revoke server-side (best effort) and clear the session
//	authdemo status    print the session phase after bootstrap
//	authdemo token     print whether a usable access token exists, refreshing if needed
//	authdemo watch     keep running, revalidating on app-state file transitions
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/appstate"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/idp"
	"github.com/jrsteele09/go-auth-client/idp/oidcprovider"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/kvstore"
	"github.com/jrsteele09/go-auth-client/lifecycle"
	"github.com/jrsteele09/go-auth-client/securestore"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authdemo failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: authdemo login|logout|status|token|watch")
		return errors.New("missing command")
	}
	command := os.Args[1]

	c := config.New()
	displayAppname(c.GetAppName())

	app, err := wire(c)
	if err != nil {
		return err
	}
	defer app.close()

	ctx := context.Background()
	if err := app.session.Bootstrap(ctx); err != nil {
		return err
	}

	switch command {
	case "login":
		return app.login(ctx)
	case "logout":
		return app.logout(ctx)
	case "status":
		app.status()
		return nil
	case "token":
		return app.token(ctx)
	case "watch":
		return app.watch(c)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// application is the wired session core.
type application struct {
	kv       *kvstore.SQLiteStore
	manager  *lifecycle.Manager
	session  *session.Session
	deviceID string
}

func wire(c config.Config) (*application, error) {
	if err := os.MkdirAll(c.GetDataFolder(), 0o700); err != nil {
		return nil, fmt.Errorf("creating data folder: %w", err)
	}

	kv, err := kvstore.NewSQLiteStore(c.GetKeyValuePath())
	if err != nil {
		return nil, err
	}

	passphrase := c.GetSecurePassphrase()
	if passphrase == "" {
		log.Warn().Msg("SECURE_PASSPHRASE not set, using a development default")
		passphrase = "authdemo-dev-only"
	}
	secure, err := securestore.NewFileStore(c.GetSecureBlobPath(), []byte(passphrase))
	if err != nil {
		kv.Close()
		return nil, err
	}

	store, err := credential.NewStore(secure, kv, credential.WithStoreLogger(log.Logger))
	if err != nil {
		kv.Close()
		return nil, err
	}

	deviceID, err := auth.EnsureDeviceID(context.Background(), kv)
	if err != nil {
		kv.Close()
		return nil, err
	}

	idpConfig := idp.Config{
		Issuer:                c.GetIssuer(),
		ClientID:              c.GetClientID(),
		RedirectURI:           c.GetRedirectURI(),
		Scopes:                c.GetScopes(),
		UsePKCE:               true,
		PostLogoutRedirectURI: c.GetPostLogoutRedirectURI(),
		AdditionalParameters: map[string]string{
			auth.DeviceIDParameter: deviceID,
		},
	}

	provider, err := oidcprovider.NewProvider(openBrowser, oidcprovider.WithLogger(log.Logger))
	if err != nil {
		kv.Close()
		return nil, err
	}

	manager, err := lifecycle.NewManager(store, provider, idpConfig, lifecycle.WithLogger(log.Logger))
	if err != nil {
		kv.Close()
		return nil, err
	}
	orchestrator, err := auth.NewOrchestrator(store, provider, provider, idpConfig, auth.WithLogger(log.Logger))
	if err != nil {
		kv.Close()
		return nil, err
	}
	sess, err := session.New(manager, orchestrator, session.WithLogger(log.Logger))
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &application{
		kv:       kv,
		manager:  manager,
		session:  sess,
		deviceID: deviceID,
	}, nil
}

func (a *application) close() {
	a.session.Close()
	if err := a.kv.Close(); err != nil {
		log.Warn().Err(err).Msg("closing key-value store")
	}
}

func (a *application) login(ctx context.Context) error {
	if a.session.Phase() == session.PhaseAuthenticated {
		fmt.Println("already logged in")
		return nil
	}
	if err := a.session.Login(ctx); err != nil {
		return err
	}
	fmt.Println("logged in")
	a.status()
	return nil
}

func (a *application) logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func (a *application) status() {
	fmt.Printf("phase: %s\n", a.session.Phase())
	if cred := a.session.Current(); cred != nil {
		fmt.Printf("device: %s\n", a.deviceID)
		fmt.Printf("access token expires: %s\n", cred.AccessTokenExpiresAt)
		if cred.RefreshTokenExpiresAt.IsZero() {
			fmt.Println("refresh token expires: unknown")
		} else {
			fmt.Printf("refresh token expires: %s\n", cred.RefreshTokenExpiresAt)
		}
	}
}

func (a *application) token(ctx context.Context) error {
	cred, err := a.manager.Tokens(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		fmt.Println("no usable session, run: authdemo login")
		return nil
	}
	fmt.Printf("usable access token present, expires %s\n", cred.AccessTokenExpiresAt)
	return nil
}

func (a *application) watch(c config.Config) error {
	monitor, err := appstate.NewFileMonitor(c.GetAppStateFile(), appstate.WithMonitorLogger(log.Logger))
	if err != nil {
		return err
	}
	defer monitor.Close()

	reconciler, err := session.NewReconciler(a.session, a.manager, monitor, session.WithReconcilerLogger(log.Logger))
	if err != nil {
		return err
	}
	defer reconciler.Close()

	expired, unsubscribe := a.session.SubscribeExpired()
	defer unsubscribe()

	fmt.Printf("watching, write foreground/background to %s (ctrl-c to stop)\n", c.GetAppStateFile())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-expired:
			fmt.Println("session expired, log in again")
		case <-stop:
			return nil
		}
	}
}

// openBrowser hands the authorization URL to the desktop browser, falling
// back to printing it for the user to open manually.
func openBrowser(url string) error {
	fmt.Printf("opening browser: %s\n", url)
	for _, opener := range [][]string{{"xdg-open", url}, {"open", url}} {
		if err := exec.Command(opener[0], opener[1]).Start(); err == nil {
			return nil
		}
	}
	fmt.Println("could not launch a browser, open the URL above manually")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
