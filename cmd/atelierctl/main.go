// Command atelierctl regroupe les outils d'exploitation :
//
//	atelierctl repair              réparation des relations (batch idempotent)
//	atelierctl token --key k.pem   émission d'un token de développement
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
