package main

//go:generate swag init -d ../.. -g cmd/greenfloord/docs.go -o ../../docs

// @title           GreenFloor Daemon API
// @version         0.1.0
// @description     Offer state, audit trail, fee budget and cycle controls of the market-making daemon.
// @host            localhost:8787
// @BasePath        /
// @schemes         http
