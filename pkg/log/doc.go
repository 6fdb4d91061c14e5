/*
Package log provides structured logging for Corral using zerolog.

A single global logger is initialized at process start via Init, with the
level and output format taken from configuration. Components derive child
loggers through WithComponent, WithNodeID, and WithWorkloadID so every line
carries enough context to follow one object through the control plane.
*/
package log
