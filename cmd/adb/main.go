// adb is a host-side command line for Android debug bridge devices.
//
// Server-backed commands (devices, connect, disconnect, server-version)
// talk to a running adb host server. Device commands (shell, push,
// pull, ls, tcpip) dial the device's TCP daemon directly, so they take
// the device address via --device.
//
// Example:
//
//	adb devices -l
//	adb --device 192.168.1.77:5555 shell getprop ro.product.model
//	adb --device 192.168.1.77:5555 push ./app.apk /data/local/tmp/app.apk
//	adb mdns
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:]))
}
