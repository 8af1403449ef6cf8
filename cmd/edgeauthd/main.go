// Command edgeauthd runs edgeauth as an HTTP service.
//
// In the default mode it serves the full API: sign-in, refresh, sign-out,
// OAuth, admin endpoints, health and metrics. With -edge it runs only the
// authorization gate in front of an upstream and needs nothing but
// verification key material.
//
//	edgeauthd -config edgeauth.yaml -users users.yaml
//	edgeauthd -edge -config edgeauth.yaml -upstream http://127.0.0.1:3000
//	echo -n 'secret' | edgeauthd -hash-password
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/internal/logging"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath   string
	usersPath    string
	edge         bool
	upstream     string
	hashPassword bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "edgeauth.yaml", "path to the YAML config file")
	flag.StringVar(&opts.usersPath, "users", "users.yaml", "path to the user seed file")
	flag.BoolVar(&opts.edge, "edge", false, "run only the authorization gate")
	flag.StringVar(&opts.upstream, "upstream", "", "upstream URL the edge gate proxies to")
	flag.BoolVar(&opts.hashPassword, "hash-password", false, "read a password from stdin and print its hash")
	flag.Parse()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "edgeauthd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	cfg, err := edgeauth.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	if opts.hashPassword {
		return hashPassword(cfg.Password, stdin, stdout)
	}

	logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)

	var handler http.Handler
	var background func(context.Context)
	if opts.edge {
		handler, err = edgeHandler(cfg, opts.upstream, logger.Slog())
	} else {
		var closer func() error
		handler, background, closer, err = apiHandler(ctx, cfg, opts.usersPath, logger)
		if closer != nil {
			defer func() {
				if cerr := closer(); cerr != nil {
					logger.Warn(context.Background(), "engine close failed", "error", cerr)
				}
			}()
		}
	}
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "listening", "addr", cfg.HTTP.Addr, "edge", opts.edge)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if background != nil {
		g.Go(func() error {
			background(gctx)
			return nil
		})
	}
	return g.Wait()
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}
