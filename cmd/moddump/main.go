package main

import (
	"log"
	"os"

	"github.com/chriskillpack/modrender"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("moddump: ")

	if len(os.Args) <= 1 {
		log.Fatal("Missing song filename")
	}

	songFName := os.Args[1]
	songF, err := os.ReadFile(songFName)
	if err != nil {
		log.Fatal(err)
	}

	modrender.SetDumpWriter(os.Stdout)

	if _, err = modrender.Load(songF); err != nil {
		log.Fatal(err)
	}
}
