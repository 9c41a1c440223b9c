package serve

import (
	"fmt"
	cmdUtil "github.com/ValentinKolb/arangovst/cmd/util"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/server"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"github.com/ValentinKolb/arangovst/rpc/transport/tcp"
	"github.com/ValentinKolb/arangovst/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start an in-memory mock database speaking VST",
		Long:    `Start a VST endpoint backed by an in-memory mock database. It serves /_api/version, /_api/collection and /_api/document and is meant for testing clients. The configuration can be set via command line flags or environment variables. The format of the environment variables is AVST_<flag> (e.g. AVST_ENDPOINT=0.0.0.0:8529)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.Flags().String(key, serveCmdConfig.Endpoint, cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8529 or /tmp/avst.sock)"))

	key = "transport"
	ServeCmd.Flags().String(key, "tcp", cmdUtil.WrapString("The transport to use (tcp, unix)"))

	key = "serializer"
	ServeCmd.Flags().String(key, serveCmdConfig.Serializer, cmdUtil.WrapString("The serializer used for messages (velocypack, json)"))

	key = "user"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("If set, clients must authenticate with this user"))

	key = "password"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("The password clients must authenticate with"))

	key = "chunksize"
	ServeCmd.Flags().Int(key, serveCmdConfig.ChunkSize, cmdUtil.WrapString("The maximum payload size of a reply chunk (in bytes)"))

	key = "workers"
	ServeCmd.Flags().Int(key, serveCmdConfig.MaxWorkersPerConn, cmdUtil.WrapString("Maximum number of requests handled concurrently per connection"))

	key = "timeout"
	ServeCmd.Flags().Duration(key, 0, cmdUtil.WrapString("Timeout for the handshake and for writing replies (0 means no timeout)"))

	key = "collections"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Comma-separated list of collections to create on start. Format: NAME[=TYPE] where TYPE is one of: document, edge"))

	cmdUtil.SetupLogFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := cmdUtil.InitLogging(); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.User = viper.GetString("user")
	serveCmdConfig.Password = viper.GetString("password")
	serveCmdConfig.ChunkSize = viper.GetInt("chunksize")
	serveCmdConfig.MaxWorkersPerConn = viper.GetInt("workers")
	serveCmdConfig.Timeout = viper.GetDuration("timeout")
	return nil
}

// parseCollections parses the NAME[=TYPE] list of the collections flag
func parseCollections(value string) (map[string]int, error) {
	collections := make(map[string]int)
	if strings.TrimSpace(value) == "" {
		return collections, nil
	}
	for _, entry := range strings.Split(value, ",") {
		name, colType, _ := strings.Cut(strings.TrimSpace(entry), "=")
		if name == "" {
			return nil, fmt.Errorf("invalid collection format: %q (expected NAME[=TYPE])", entry)
		}
		switch strings.TrimSpace(colType) {
		case "", "document":
			collections[name] = server.CollectionTypeDocument
		case "edge":
			collections[name] = server.CollectionTypeEdge
		default:
			return nil, fmt.Errorf("invalid collection type: %s (expected one of: document, edge)", colType)
		}
	}
	return collections, nil
}

// run starts the mock server
func run(_ *cobra.Command, _ []string) error {
	s, err := serializer.New(serveCmdConfig.Serializer)
	if err != nil {
		return err
	}

	// Parse the transport
	var connector transport.IServerConnector
	switch viper.GetString("transport") {
	case "tcp":
		connector = tcp.NewServerConnector()
	case "unix":
		connector = unix.NewServerConnector()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	collections, err := parseCollections(viper.GetString("collections"))
	if err != nil {
		return err
	}
	db := server.NewMockDatabase(s)
	for name, colType := range collections {
		db.CreateCollection(name, colType)
	}

	serv, err := server.NewVSTServer(serveCmdConfig, connector, db)
	if err != nil {
		return err
	}

	// Stop on SIGINT / SIGTERM
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		_ = serv.Close()
	}()

	return serv.Serve()
}
