// Package effects implements the guitar effect processors: the distortion
// waveshaper used inline in the cross-feedback path and the stereo delay
// composite with ping-pong routing and mid/side width enhancement.
package effects
