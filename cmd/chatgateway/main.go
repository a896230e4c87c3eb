package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"chatconn/internal/api"
	"chatconn/internal/applog"
	"chatconn/internal/chatws"
	"chatconn/internal/config"
	"chatconn/internal/outage"
	"chatconn/internal/processor"
	"chatconn/internal/registration"
	"chatconn/internal/store"
)

func main() {
	exe, _ := os.Executable()
	baseDir := filepath.Dir(exe)
	if wd, err := os.Getwd(); err == nil {
		baseDir = wd
	}

	configPath := filepath.Join(baseDir, "config.json")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ResolvePaths(baseDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.Save(configPath)
		fmt.Printf("wrote default config: %s\n", configPath)
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		fmt.Printf("failed to init database: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()
	s.CleanOldLogs(7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conns := make(map[chatws.ConnectionKind]*chatws.Connection, 2)
	loggers := make(map[chatws.ConnectionKind]*applog.Logger, 2)
	outageDetectors := make(map[chatws.ConnectionKind]*outage.Detector, 2)

	for _, kind := range []chatws.ConnectionKind{chatws.Identified, chatws.Unidentified} {
		logger := applog.New(kind.String(), s)
		loggers[kind] = logger

		regMgr, err := registration.New(kind, s)
		if err != nil {
			fmt.Printf("failed to load registration state for %s: %v\n", kind, err)
			os.Exit(1)
		}

		proc := processor.New(logger)
		det := outage.New(logger)
		outageDetectors[kind] = det

		credential := cfg.IdentifiedCredentialSource
		if kind == chatws.Unidentified {
			credential = cfg.UnidentifiedCredentialSource
		}
		url := strings.Replace(cfg.ChatServerURLTemplate, "{kind}", kind.String(), 1)

		factory := func(k chatws.ConnectionKind) (chatws.Transport, error) {
			headers := http.Header{}
			if credential != "" {
				headers.Set("Authorization", credential)
			}
			return chatws.NewWSTransport(url, headers), nil
		}

		conn := chatws.NewConnection(ctx, kind, factory, regMgr, proc, det, stdlog.New(logger.Writer(), "", 0))
		conn.SetAppActive(ctx, true)
		conns[kind] = conn
	}

	router := api.SetupRouter(cfg, s, conns, loggers)

	fmt.Printf("========================================\n")
	fmt.Printf("  chat connection gateway\n")
	fmt.Printf("  listening on: %s\n", cfg.Listen)
	fmt.Printf("  admin user:   %s\n", cfg.AdminUser)
	fmt.Printf("  data dir:     %s\n", cfg.DataDir)
	fmt.Printf("========================================\n")

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println("\nshutting down connections...")
		for _, conn := range conns {
			conn.Stop()
		}
		cancel()
		os.Exit(0)
	}()

	if err := router.Run(cfg.Listen); err != nil {
		fmt.Printf("http server failed: %v\n", err)
		os.Exit(1)
	}
}
