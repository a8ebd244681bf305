package main

import (
	"log"
	"os"

	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := Root().Execute(); err != nil {
		log.Printf("pipeline: %v", err)
		os.Exit(1)
	}
}
