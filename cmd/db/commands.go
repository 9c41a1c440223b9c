package db

import (
	"fmt"
	"github.com/ValentinKolb/arangovst/cmd/util"
	"github.com/ValentinKolb/arangovst/lib/cache"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Prints the version of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			version, err := vstClient.GetVersion(ctx).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("server=%s, version=%s, license=%s\n", version.Server, version.Version, version.License)
			return nil
		},
	}
	execCmd = &cobra.Command{
		Use:   "exec [method] [path] [body]",
		Short: "Sends a raw request, the optional body is JSON",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := common.ParseRequestMethod(args[0])
			if err != nil {
				return err
			}
			req := common.NewRequest(viper.GetString("database"), method, args[1])
			for _, header := range viper.GetStringSlice("header") {
				key, value, ok := strings.Cut(header, "=")
				if !ok {
					return fmt.Errorf("invalid header %q (expected key=value)", header)
				}
				req = req.WithHeader(key, value)
			}
			if len(args) == 3 {
				body, err := encodeJSONArg(args[2])
				if err != nil {
					return err
				}
				req = req.WithBody(body)
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			resp, err := vstClient.Execute(ctx, req).Await(ctx)
			if err != nil {
				return err
			}
			return printBody(resp)
		},
	}

	// --------------------------------------------------------------------------
	// Collection Commands
	// --------------------------------------------------------------------------

	collectionCmd = &cobra.Command{
		Use:   "collection",
		Short: "Collection operations",
	}
	collectionInfoCmd = &cobra.Command{
		Use:   "info [name]",
		Short: "Prints the metadata of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			info, err := vstClient.CollectionInfo(ctx, args[0]).Await(ctx)
			if err != nil {
				return err
			}
			return util.PrintJSON(info)
		},
	}
	collectionTypeCmd = &cobra.Command{
		Use:   "type [name]",
		Short: "Resolves the type of a collection (document or edge)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			colType, err := vstClient.CollectionType(ctx, args[0]).Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("collection=%s, type=%s\n", args[0], colType)
			return nil
		},
	}
	collectionCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Creates a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			colType := cache.CollectionDocument
			if edge, _ := cmd.Flags().GetBool("edge"); edge {
				colType = cache.CollectionEdge
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			info, err := vstClient.CreateCollection(ctx, args[0], colType).Await(ctx)
			if err != nil {
				return err
			}
			return util.PrintJSON(info)
		},
	}
	collectionDropCmd = &cobra.Command{
		Use:   "drop [name]",
		Short: "Drops a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if _, err := vstClient.DropCollection(ctx, args[0]).Await(ctx); err != nil {
				return err
			}
			fmt.Println("dropped successfully")
			return nil
		},
	}

	// --------------------------------------------------------------------------
	// Document Commands
	// --------------------------------------------------------------------------

	docCmd = &cobra.Command{
		Use:   "doc",
		Short: "Document operations",
	}
	docGetCmd = &cobra.Command{
		Use:   "get [collection/key]",
		Short: "Reads a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cache.ParseHandle(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			var doc map[string]interface{}
			if _, err := vstClient.GetDocument(ctx, h, &doc).Await(ctx); err != nil {
				return err
			}
			return util.PrintJSON(doc)
		},
	}
	docInsertCmd = &cobra.Command{
		Use:   "insert [collection] [json]",
		Short: "Inserts a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := decodeJSONArg(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			meta, err := vstClient.InsertDocument(ctx, args[0], doc).Await(ctx)
			if err != nil {
				return err
			}
			return util.PrintJSON(meta)
		},
	}
	docReplaceCmd = &cobra.Command{
		Use:   "replace [collection/key] [json]",
		Short: "Replaces a document, use --rev to make it conditional",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cache.ParseHandle(args[0])
			if err != nil {
				return err
			}
			doc, err := decodeJSONArg(args[1])
			if err != nil {
				return err
			}
			if rev, _ := cmd.Flags().GetString("rev"); rev != "" {
				vstClient.Documents().Put(h, rev)
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			meta, err := vstClient.ReplaceDocument(ctx, h, doc).Await(ctx)
			if err != nil {
				return err
			}
			return util.PrintJSON(meta)
		},
	}
	docDeleteCmd = &cobra.Command{
		Use:   "delete [collection/key]",
		Short: "Deletes a document, use --rev to make it conditional",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cache.ParseHandle(args[0])
			if err != nil {
				return err
			}
			if rev, _ := cmd.Flags().GetString("rev"); rev != "" {
				vstClient.Documents().Put(h, rev)
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if _, err := vstClient.DeleteDocument(ctx, h).Await(ctx); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
)

func init() {
	execCmd.Flags().StringSlice("header", nil, util.WrapString("Headers to send (key=value, repeatable)"))

	collectionCreateCmd.Flags().Bool("edge", false, util.WrapString("Create an edge collection"))
	collectionCmd.AddCommand(collectionInfoCmd, collectionTypeCmd, collectionCreateCmd, collectionDropCmd)

	docReplaceCmd.Flags().String("rev", "", util.WrapString("Only replace if the document has this revision"))
	docDeleteCmd.Flags().String("rev", "", util.WrapString("Only delete if the document has this revision"))
	docCmd.AddCommand(docGetCmd, docInsertCmd, docReplaceCmd, docDeleteCmd)
}
