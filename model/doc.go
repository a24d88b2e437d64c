// Package model defines the typed records the result engine works on:
// subjects, marks, attempts, results and the engine's error kinds.
//
// Constructors validate required fields at the boundary so the rest of the
// engine never sees a half-formed record.
package model
