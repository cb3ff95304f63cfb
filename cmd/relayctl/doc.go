// Command relayctl runs the relay's media pipeline from the command line.
//
//	relayctl resolve clip.mpeg
//	relayctl probe memo.ogg
//	relayctl optimize memo.ogg memo.mp3 --normalize --remove-noise
//	relayctl compress memo.wav memo.mp3 --target-kb 500
//	relayctl dispatch clip.mov --caption "hello"
//
// dispatch never sends anything; it writes the payload next to the input as
// <name>.relay<ext> and prints the payload descriptor.
package main
