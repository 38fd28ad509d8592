package main

/*
This application sweeps a frequency range and publishes every spectrum to
an MQTT topic as JSON.

Spectra are queued between the sweep and the broker connection, so a slow
broker drops messages instead of stalling the sweep.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hb9tf/sweeper/fft"
	"github.com/hb9tf/sweeper/hackrf"
	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/sdr"
	"github.com/hb9tf/sweeper/sweep"
)

// Flags
var (
	lowMHz      = flag.Uint("lowMHz", 2400, "Lower frequency boundary in MHz.")
	highMHz     = flag.Uint("highMHz", 2500, "Upper frequency boundary in MHz.")
	binWidth    = flag.Uint("binWidth", 0, "FFT bin width (frequency resolution) in Hz, 0 selects 1000000.")
	planEffort  = flag.String("effort", "measure", "Plan type, one of: estimate, measure, patient, exhaustive.")
	wisdomPath  = flag.String("wisdom", "", "Use wisdom file (will be created if necessary).")
	numSweeps   = flag.Uint64("sweeps", 0, "Number of sweeps to perform, 0 sweeps until interrupted.")
	normalized  = flag.Bool("normalized", false, "Keep the same timestamp within a sweep.")
	lnaGain     = flag.Uint("lna", 16, "RX LNA (IF) gain, 0-40dB, 8dB steps.")
	vgaGain     = flag.Uint("vga", 20, "RX VGA (baseband) gain, 0-62dB, 2dB steps.")
	tones       = flag.String("tones", "", "Carriers for the emulated HackRF, freqHz[:amplitude] separated by commas.")
	queueSize   = flag.Int("queue", defaultRingSize, "Number of spectra buffered for publishing.")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9100.")

	// MQTT
	broker       = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL.")
	topic        = flag.String("topic", "sweeper/spectrum", "MQTT topic to publish to.")
	qos          = flag.Uint("qos", 0, "MQTT quality of service (0, 1 or 2).")
	retain       = flag.Bool("retain", false, "Ask the broker to retain the last message.")
	user         = flag.String("user", "", "MQTT user.")
	passwordFile = flag.String("passwordFile", "", "Path to the file containing the password for the MQTT user.")
)

func connect() (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID("sweeper-" + uuid.NewString())
	if *user != "" {
		opts.SetUsername(*user)
	}
	if *passwordFile != "" {
		pass, err := os.ReadFile(*passwordFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read MQTT password file %q: %w", *passwordFile, err)
		}
		opts.SetPassword(strings.TrimSpace(string(pass)))
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		glog.Infof("connected to MQTT broker %s\n", *broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		glog.Warningf("lost connection to MQTT broker: %s\n", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("unable to connect to MQTT broker %s: %w", *broker, token.Error())
	}
	return client, nil
}

// mqttPublish returns a publish function for consume.
func mqttPublish(client mqtt.Client, topic string, qos byte, retain bool) func([]byte) error {
	return func(payload []byte) error {
		token := client.Publish(topic, qos, retain, payload)
		token.Wait()
		return token.Error()
	}
}

// consume publishes queued messages until ctx is done and the queue is
// drained. It returns the number of messages published successfully.
func consume(ctx context.Context, r *ring, publish func([]byte) error, m *metrics.Metrics) int {
	sent, failed := 0, 0
	for {
		msg, ok := r.Pop(ctx)
		if !ok {
			return sent
		}
		if err := publish(msg); err != nil {
			failed++
			m.Published(false)
			if failed == 1 || failed%1000 == 0 {
				glog.Warningf("unable to publish spectrum (%d failures so far): %s\n", failed, err)
			}
			continue
		}
		sent++
		m.Published(true)
	}
}

// spectrumCallback encodes each spectrum onto r.
func spectrumCallback(r *ring) sweep.SpectrumFunc {
	dropped := 0
	return func(_ *sweep.State, sp *sweep.Spectrum, _ *sdr.Transfer) sweep.Action {
		msg, err := encodeMessage(sp)
		if err != nil {
			glog.Warningf("unable to encode spectrum at %d Hz: %s\n", sp.Frequency, err)
			return sweep.Continue
		}
		if !r.Push(msg) {
			dropped++
			if dropped == 1 || dropped%1000 == 0 {
				glog.Warningf("publish queue full, %d spectra dropped\n", dropped)
			}
		}
		return sweep.Continue
	}
}

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	if *highMHz <= *lowMHz || *highMHz > sdr.FreqMaxMHz {
		glog.Exitf("argument error: invalid range %d-%d MHz", *lowMHz, *highMHz)
	}
	if *qos > 2 {
		glog.Exitf("argument error: qos must be 0, 1 or 2, got %d", *qos)
	}
	effort, err := fft.ParseEffort(*planEffort)
	if err != nil {
		glog.Exitf("argument error: %s", err)
	}
	t, err := hackrf.ParseTones(*tones)
	if err != nil {
		glog.Exitf("argument error: %s", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go func() {
			if err := metrics.Serve(*metricsAddr, prometheus.DefaultGatherer); err != nil {
				glog.Warningf("metrics server stopped: %s\n", err)
			}
		}()
	}

	client, err := connect()
	if err != nil {
		glog.Exit(err)
	}
	defer client.Disconnect(250)

	dev := hackrf.NewEmulator(t...)
	dev.Pace = time.Millisecond
	defer dev.Close()
	if err := dev.SetLNAGain(uint32(*lnaGain)); err != nil {
		glog.Warningf("unable to set LNA gain %d dB: %s\n", *lnaGain, err)
	}
	if err := dev.SetVGAGain(uint32(*vgaGain)); err != nil {
		glog.Warningf("unable to set VGA gain %d dB: %s\n", *vgaGain, err)
	}

	q := newRing(*queueSize, m)
	state := &sweep.State{}
	if err := state.Init(dev, sdr.DefaultSampleRate, 0); err != nil {
		glog.Exitf("unable to initialize sweep: %s", err)
	}
	defer state.Close()
	steps := []error{
		state.SetNormalizedTimestamp(*normalized),
		state.SetOutput(sweep.OutputBinary, sweep.SinkDiscard, nil),
		state.SetRange(sweep.Range{MinMHz: uint16(*lowMHz), MaxMHz: uint16(*highMHz)}),
	}
	for _, err := range steps {
		if err != nil {
			glog.Exitf("unable to configure sweep: %s", err)
		}
	}
	if *wisdomPath != "" {
		if err := state.ImportWisdom(*wisdomPath); err != nil {
			glog.Warningf("wisdom file not loaded, will attempt to create it: %s\n", err)
		}
	}
	if err := state.SetupFFT(effort, uint32(*binWidth)); err != nil {
		glog.Exitf("unable to set up FFT: %s", err)
	}
	if err := state.SetSpectrumCallback(spectrumCallback(q)); err != nil {
		glog.Exitf("unable to install spectrum callback: %s", err)
	}
	m.SetBinWidth(state.BinWidth())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() {
		done <- consume(ctx, q, mqttPublish(client, *topic, byte(*qos), *retain), m)
	}()

	if err := state.Start(*numSweeps); err != nil {
		glog.Exitf("unable to start sweep: %s", err)
	}
	glog.Infof("publishing %d-%d MHz to %s on %s\n", *lowMHz, *highMHz, *topic, *broker)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	var reported uint64
wait:
	for {
		select {
		case sig := <-sigs:
			glog.Infof("caught signal %s, exiting\n", sig)
			break wait
		case <-poll.C:
			if c := state.SweepCount(); c > reported {
				m.AddSweeps(c - reported)
				reported = c
			}
			if !dev.IsStreaming() {
				break wait
			}
		}
	}

	if err := state.Stop(); err != nil {
		glog.Warningf("unable to stop sweep: %s\n", err)
	}
	if err := dev.StopRx(); err != nil {
		glog.Warningf("unable to stop streaming: %s\n", err)
	}
	cancel()
	sent := <-done
	glog.Infof("published %d spectra\n", sent)

	if *wisdomPath != "" {
		if err := state.ExportWisdom(*wisdomPath); err != nil {
			glog.Warningf("unable to export wisdom to %q: %s\n", *wisdomPath, err)
		}
	}
}
