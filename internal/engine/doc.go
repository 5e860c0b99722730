// Package engine contains the simulation loop and the time rules.
// This is the heartbeat of the time rooms: one tick resolves the observer's room, advances the
// three room clocks and ages every tracked object against them.
package engine
