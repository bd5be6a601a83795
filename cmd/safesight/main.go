package main

import (
	"safesight/cmd/handlers"
	"safesight/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
