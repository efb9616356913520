/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "rtmbot/cmd"

func main() {
	cmd.Execute()
}
