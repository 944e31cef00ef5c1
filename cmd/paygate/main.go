package main

import (
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/bootstrap"
)

func main() {
	if err := bootstrap.Serve(); err != nil {
		log.Fatal(err)
	}
}
