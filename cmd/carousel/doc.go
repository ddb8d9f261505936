// Command carousel is the photo and video download daemon and its CLI.
// The same binary serves three roles: the long-running daemon (`carousel
// daemon`), the control CLI talking to it over a Unix socket, and the
// hidden per-stage worker child processes the daemon spawns.
package main
