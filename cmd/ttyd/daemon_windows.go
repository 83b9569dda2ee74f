//go:build windows

package main

import (
	"fmt"
	"os"
)

func daemonize(childArgs []string) {
	fmt.Println("Daemon mode is not supported on Windows.")
	fmt.Println("Run ttyd in the foreground, or register it as a Windows service.")
	os.Exit(1)
}

func daemonStop() {
	fmt.Println("Daemon mode is not supported on Windows.")
	os.Exit(1)
}

func daemonStatus() {
	fmt.Println("Daemon mode is not supported on Windows.")
	os.Exit(1)
}
