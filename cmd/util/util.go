package util

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupLogFlags adds the logging flags to a command
func SetupLogFlags(cmd *cobra.Command) {
	key := "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))

	key = "log-format"
	cmd.PersistentFlags().String(key, "console", WrapString("The format of the log output (console, json)"))
}

// SetupClientFlags adds the connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "host"
	cmd.PersistentFlags().String(key, defaults.Connection.Host, WrapString("The host of the database server"))

	key = "port"
	cmd.PersistentFlags().Int(key, defaults.Connection.Port, WrapString("The port of the database server"))

	key = "socket"
	cmd.PersistentFlags().String(key, "", WrapString("Path of a unix socket to connect to, host and port are ignored if set"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 0, WrapString("How long a request waits for its reply (e.g. 5s, 0 means no timeout)"))

	key = "user"
	cmd.PersistentFlags().String(key, defaults.Connection.User, WrapString("The user used to authenticate, empty disables authentication"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("The password of the user"))

	key = "use-ssl"
	cmd.PersistentFlags().Bool(key, false, WrapString("Whether to connect using TLS"))

	key = "chunksize"
	cmd.PersistentFlags().Int(key, defaults.Connection.ChunkSize, WrapString("The maximum payload size of a single chunk (in bytes)"))

	key = "connections"
	cmd.PersistentFlags().Int(key, defaults.MaxConnections, WrapString("The maximum number of connections opened to the server"))

	key = "selection"
	cmd.PersistentFlags().String(key, string(defaults.Selection), WrapString("How a connection is selected for a request (round-robin, least-loaded)"))

	key = "serializer"
	cmd.PersistentFlags().String(key, defaults.Serializer, WrapString("The serializer used for messages (velocypack, json)"))

	key = "database"
	cmd.PersistentFlags().String(key, defaults.Database, WrapString("The database requests are scoped to"))

	key = "document-cache-size"
	cmd.PersistentFlags().Int(key, 0, WrapString("The maximum number of cached document revisions (0 means unbounded)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, defaults.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds)"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 keeps the system default)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 keeps the system default)"))
}

// InitConfig loads .env files and reads environment variables with the AVST_ prefix
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("avst")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	conf := common.DefaultClientConfig()
	conf.Connection = common.ConnectionConfig{
		Host:       viper.GetString("host"),
		Port:       viper.GetInt("port"),
		SocketPath: viper.GetString("socket"),
		Timeout:    viper.GetDuration("timeout"),
		User:       viper.GetString("user"),
		Password:   viper.GetString("password"),
		UseSSL:     viper.GetBool("use-ssl"),
		ChunkSize:  viper.GetInt("chunksize"),
	}
	conf.Database = viper.GetString("database")
	conf.MaxConnections = viper.GetInt("connections")
	conf.Selection = common.SelectionPolicy(viper.GetString("selection"))
	conf.Serializer = viper.GetString("serializer")
	conf.DocumentCacheSize = viper.GetInt("document-cache-size")
	conf.SocketConf = common.SocketConf{
		WriteBufferSize: viper.GetInt("write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
	}
	conf.TCPConf = common.TCPConf{
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    -1,
	}
	return conf.Normalize()
}

// InitLogging sets up the loggers from the log flags
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"), viper.GetString("log-format"), os.Stderr)
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// PrintJSON prints a value as indented JSON
func PrintJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// RequestTimeout is the upper bound for a single CLI request
func RequestTimeout() time.Duration {
	if t := viper.GetDuration("timeout"); t > 0 {
		return 2 * t
	}
	return 30 * time.Second
}
