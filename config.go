package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robertof/go-ruuvi-station/ble"
	"github.com/robertof/go-ruuvi-station/collector"
	"github.com/robertof/go-ruuvi-station/device"
	"github.com/robertof/go-ruuvi-station/gatt"
	"gopkg.in/yaml.v3"
)

type config struct {
  Debug bool `yaml:"debug"`
  Trace bool `yaml:"trace"`
  ConfigFile string `yaml:"-"`
  BindAddress string `yaml:"bind"`
  DiscoverTags bool `yaml:"-"`
  BluetoothDeviceId int `yaml:"bluetooth_device"`
  BluetoothConnParams ble.ConnParams `yaml:"bluetooth_connection_params"`
  AllowList bool `yaml:"allow_list"`

  ScanInterval time.Duration `yaml:"interval"`
  ScanWindow time.Duration `yaml:"window"`
  LogSyncInterval time.Duration `yaml:"log_sync_interval"`
  IdleTimeout time.Duration `yaml:"idle_timeout"`
  MaxRetries int `yaml:"max_retries"`
  Backoff time.Duration `yaml:"backoff"`

  ConnectRetries int `yaml:"connect_retries"`
  ConnectBackoff time.Duration `yaml:"connect_backoff"`
  ConnectTimeout time.Duration `yaml:"connect_timeout"`
  TransferTimeout time.Duration `yaml:"transfer_timeout"`
  SettleDelay time.Duration `yaml:"settle_delay"`
  CommandOnHeartbeat bool `yaml:"command_on_heartbeat"`

  MQTTBroker string `yaml:"mqtt_broker"`
  MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`
  NATSURL string `yaml:"nats_url"`
  NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

  TagSpecs []string `yaml:"tags"`
  Tags []*device.Tag `yaml:"-"`
}

func (c config) SessionOptions() gatt.Options {
  opts := gatt.DefaultOptions()

  opts.MaxRetries = c.ConnectRetries
  opts.RetryBackoff = c.ConnectBackoff
  opts.ConnectTimeout = c.ConnectTimeout
  opts.IdleTimeout = c.TransferTimeout
  opts.SettleDelay = c.SettleDelay
  opts.CommandOnHeartbeat = c.CommandOnHeartbeat

  return opts
}

func (c config) CollectionOptions() collector.CollectionOptions {
  return collector.CollectionOptions{
    MaxRetries: c.MaxRetries,
    BackoffFactor: c.Backoff,
  }
}

type boundTagList struct {
  list *[]*device.Tag
}

func (t *boundTagList) String() string {
  return ""
}

func (t *boundTagList) Set(v string) error {
  tag, err := device.NewTagSpec(v).Tag()
  if err != nil {
    return fmt.Errorf("failed to create tag: %w", err)
  }

  *t.list = append(*t.list, tag)

  return nil
}

func ParseArgs() config {
  cfg, err := parseArgs(flag.CommandLine, os.Args[1:])

  if err != nil {
    fmt.Fprintln(os.Stderr, "Error:", err)
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}

func parseArgs(fs *flag.FlagSet, args []string) (config, error) {
  var cfg config

  defaults := gatt.DefaultOptions()
  cfg.BluetoothConnParams = ble.ConnParamsDefault

  fs.StringVar(&cfg.ConfigFile, "config", "", "YAML configuration file. Flags given on the command line take precedence")
  fs.StringVar(&cfg.BindAddress, "bind", "localhost:9102", "Where the HTTP API and the metrics will bind to")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  fs.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params", "Bluetooth connection parameters (one of 'default' or 'power-saving')")
  fs.BoolVar(&cfg.AllowList, "allow-list", false, "Only listen to the configured tags")
  fs.BoolVar(&cfg.DiscoverTags, "discover", false, "Discover RuuviTags in range and quit")
  fs.DurationVar(&cfg.ScanInterval, "interval", time.Minute, "How frequently a scan window is opened")
  fs.DurationVar(&cfg.ScanWindow, "window", 0,
    "How long every scan window lasts. Zero (or a window as long as the interval) scans continuously")
  fs.DurationVar(&cfg.LogSyncInterval, "log-sync-interval", time.Hour,
    "How frequently the history log of tags configured with logs=true is downloaded")
  fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", 0,
    "Timeout after which scanning is suspended if nobody reads the measurements. Zero disables it")
  fs.IntVar(&cfg.MaxRetries, "max-retries", collector.DefaultMaxRetries, "Max number of retries when starting a scan")
  fs.DurationVar(&cfg.Backoff, "backoff", collector.DefaultBackoffFactor,
    "Exponential backoff factor for scan retries")
  fs.IntVar(&cfg.ConnectRetries, "connect-retries", defaults.MaxRetries, "Connection attempts per session")
  fs.DurationVar(&cfg.ConnectBackoff, "connect-backoff", defaults.RetryBackoff,
    "Exponential backoff factor between connection attempts")
  fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", defaults.ConnectTimeout, "Timeout of a single connection attempt")
  fs.DurationVar(&cfg.TransferTimeout, "transfer-timeout", defaults.IdleTimeout,
    "A log download is aborted when the tag sends nothing for this long")
  fs.DurationVar(&cfg.SettleDelay, "settle-delay", defaults.SettleDelay,
    "How long a tag is considered connected after disconnecting")
  fs.BoolVar(&cfg.CommandOnHeartbeat, "command-on-heartbeat", false,
    "Send the log read command after the first heartbeat instead of right after subscribing")
  fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883). Empty disables MQTT")
  fs.StringVar(&cfg.MQTTTopicPrefix, "mqtt-topic-prefix", "ruuvi", "MQTT topic prefix")
  fs.StringVar(&cfg.NATSURL, "nats-url", "", "NATS server URL (e.g. nats://localhost:4222). Empty disables NATS")
  fs.StringVar(&cfg.NATSSubjectPrefix, "nats-subject-prefix", "ruuvi", "NATS subject prefix")
  fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  var flagTags []*device.Tag

  fs.Var(
    &boundTagList{list: &flagTags},
    "tag",
    "Tag spec in the form of `key=value,key=value`. Can be repeated.\n" + device.TagSpecHelp(),
  )

  if err := fs.Parse(args); err != nil {
    return cfg, err
  }

  if cfg.ConfigFile != "" {
    if err := loadConfigFile(fs, &cfg); err != nil {
      return cfg, err
    }
  }

  cfg.Tags = append(cfg.Tags, flagTags...)

  if cfg.AllowList && len(cfg.Tags) == 0 {
    return cfg, fmt.Errorf("the allow-list requires at least one tag")
  }

  return cfg, nil
}

// loadConfigFile overlays the file on cfg, then applies again every flag given explicitly.
func loadConfigFile(fs *flag.FlagSet, cfg *config) error {
  explicit := make(map[string]string)

  fs.Visit(func(f *flag.Flag) {
    if f.Name != "tag" && f.Name != "config" {
      explicit[f.Name] = f.Value.String()
    }
  })

  data, err := os.ReadFile(cfg.ConfigFile)
  if err != nil {
    return fmt.Errorf("failed to read config file: %w", err)
  }

  if err := yaml.Unmarshal(data, cfg); err != nil {
    return fmt.Errorf("failed to parse config file %v: %w", cfg.ConfigFile, err)
  }

  for name, value := range explicit {
    if err := fs.Set(name, value); err != nil {
      return fmt.Errorf("failed to apply flag %v: %w", name, err)
    }
  }

  for _, spec := range cfg.TagSpecs {
    tag, err := device.NewTagSpec(spec).Tag()
    if err != nil {
      return fmt.Errorf("failed to create tag %q: %w", spec, err)
    }

    cfg.Tags = append(cfg.Tags, tag)
  }

  return nil
}
