package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	devenv "subplan-backend/dev/env"
	"subplan-backend/internal/components/db"
	"subplan-backend/pkg/migrations"
	"subplan-backend/pkg/serviceutil"
)

//go:embed fixtures
var fixtures embed.FS

const devConfig = `{
	port: 8000,
	database: { file: "%s" },
	update_cron: "* * * * *",
	plans: [
		{ name: "students", dialect: "students", url: "http://127.0.0.1:%d/students/subst_%%03d.htm" },
		{ name: "teachers", dialect: "teachers", url: "http://127.0.0.1:%d/teachers/subst_%%03d.htm" },
	],
}
`

func create(ctx context.Context, recreate bool, fixturePort int) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	if recreate {
		err = os.RemoveAll("dev/.state")
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	dbPath, err := devenv.ResolvePath("<dev_state>/subplan.db")
	if err != nil {
		return err
	}
	database, err := migrations.OpenAndMigrateDB(ctx, migrations.Database{File: dbPath}, db.Schema)
	if err != nil {
		return err
	}
	database.Close()
	fmt.Println("database ready at", dbPath)

	configPath, err := devenv.ResolvePath("<dev_state>/config.json5")
	if err != nil {
		return err
	}
	_, err = os.Stat(configPath)
	if err == nil {
		fmt.Println("config already created at", configPath)
		return nil
	}
	config := fmt.Sprintf(devConfig, filepath.ToSlash(dbPath), fixturePort, fixturePort)
	err = os.WriteFile(configPath, []byte(config), 0666)
	if err != nil {
		return err
	}
	fmt.Println("config created at", configPath)
	return nil
}

func main() {
	recreate := flag.Bool("recreate", false, "recreate the dev environment from scratch")
	serve := flag.Bool("serve", false, "serve the fixture plans after creating the dev environment")
	port := flag.Int("port", 8090, "port of the fixture plan server")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	err := create(ctx, *recreate, *port)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err.Error())
		os.Exit(1)
	}
	slog.Info("dev environment created successfully!")

	if !*serve {
		return
	}
	root, err := fs.Sub(fixtures, "fixtures")
	if err != nil {
		serviceutil.Fatal("open fixtures", err)
	}
	err = serviceutil.StartHttpServer(ctx, *port, http.FileServerFS(root))
	if err != nil {
		serviceutil.Fatal("serve fixtures", err)
	}
}
