// Command vidpipe runs the media publishing pipeline.
//
// `vidpipe serve` starts the daemon and its HTTP API; `vidpipe run` processes
// one file locally with a progress bar. The jobs, backends, quota, and logs
// commands talk to a running daemon, while config and notify work offline.
package main
