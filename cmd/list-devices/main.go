// Command list-devices prints the audio devices PortAudio can see, with the
// index to use for INPUT_DEVICE_INDEX and OUTPUT_DEVICE_INDEX.
package main

import (
	"fmt"
	"os"

	"github.com/lexiqai/voice-button/internal/audio"
)

func main() {
	if err := audio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer audio.Terminate()

	devices, err := audio.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	for _, d := range devices {
		fmt.Printf("%d: %s (%s)\n", d.Index, d.Name, d.HostAPI)
		fmt.Printf("   Max Input Channels: %d\n", d.MaxInputChannels)
		fmt.Printf("   Max Output Channels: %d\n", d.MaxOutputChannels)
		fmt.Printf("   Default Sample Rate: %.0f\n", d.DefaultSampleRate)
	}
}
