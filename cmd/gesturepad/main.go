package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/gesturepad/internal/app"
	"github.com/ayusman/gesturepad/internal/config"
	"github.com/ayusman/gesturepad/internal/server"
	"github.com/ayusman/gesturepad/internal/store"
	"github.com/ayusman/gesturepad/internal/tray"
)

const defaultConfigPath = "gesturepad.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration")
	addr := flag.String("addr", "", "debug server address (overrides server.addr)")
	dbPath := flag.String("db", "", "database path (overrides db_path)")
	useTray := flag.Bool("tray", false, "show the system tray menu")
	preview := flag.Bool("preview", false, "show the camera preview window (not available on macOS)")
	watch := flag.Bool("watch", false, "reload the configuration when the file changes")
	initConfig := flag.Bool("init", false, "write the default configuration to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := writeDefaultConfig(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", *configPath)
		return
	}

	fmt.Println("Gesturepad - webcam gesture signals")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *preview {
		cfg.ShowPreview = true
	}

	// Initialize the store
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	a := app.New(app.Config{Settings: cfg, Store: st})
	if err := a.Start(); err != nil {
		// Keep serving the debug surface; signals read off until a reload
		// or a toggle succeeds.
		log.Printf("Gesture pipeline not started: %v", err)
	}
	defer a.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	webDir := findWebDir(cfg.Server.StaticDir)
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Host:      a,
	})

	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Server.Addr)
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			log.Printf("Server failed: %v", err)
			stop()
		}
	}()

	if *watch {
		w, err := app.NewWatcher(*configPath, a)
		if err != nil {
			log.Printf("Config watcher not started: %v", err)
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	if *useTray {
		runTray(ctx, stop, a, "http://"+cfg.Server.Addr)
	} else {
		<-ctx.Done()
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

// runTray shows the tray menu until ctx is done or Quit is clicked. It
// must run on the main goroutine.
func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, url string) {
	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnOpen(func() {
		if err := openBrowser(url); err != nil {
			log.Printf("Failed to open browser: %v", err)
		}
	})
	t.OnQuit(stop)

	a.OnEdge(func(ev app.Event) {
		if ev.Kind != store.EdgeFall {
			t.SetLastSignal(ev.Channel)
		}
	})

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

// loadConfig reads path. A missing file at the default path selects the
// built-in configuration.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		log.Printf("No %s found, using built-in configuration", path)
		return config.Default(), nil
	}
	return nil, err
}

// writeDefaultConfig saves the built-in configuration to path. An existing
// file is left alone.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return config.Save(config.Default(), path)
}

// findWebDir searches for the web directory in common locations.
// It checks dir, then "web", "../web" and "../../web" relative to the
// working directory. Returns the first existing directory or empty string
// if none found.
func findWebDir(dir string) string {
	candidates := []string{"web", "../web", "../../web"}
	if dir != "" {
		candidates = append([]string{dir}, candidates...)
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	return ""
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
