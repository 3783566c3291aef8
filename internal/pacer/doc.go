// ABOUTME: Paced reader package
// ABOUTME: Real-time packet delivery for sources that do not pace themselves
// Package pacer reads audio from a Source that returns data as fast as it is
// asked (a file, a generator) and hands it to a PacketHandler at playback
// speed. A timer is re-armed after every packet with an interval corrected
// by the accumulated difference between actual and ideal packet spacing, so
// timer jitter and handler overhead do not accumulate into drift.
//
// Sources that already block at the playback rate (a FIFO fed by a player)
// use BlockingStrategy and are read back to back.
package pacer
