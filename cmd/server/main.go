package main

import (
	"github.com/OFFIS-RIT/lexgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/internal/server"
	"github.com/OFFIS-RIT/lexgraph/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	cfg := config.Load()
	bootstrap.InitLogger(cfg, "server")

	server.Init(cfg)
}
