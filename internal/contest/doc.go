// Package contest holds the types and interfaces shared by the discovery,
// extraction, orchestration and persistence subsystems.
package contest
