package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/version"
)

func providersCmd() *cobra.Command {
	var catalogPath string
	var showModels bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List translation providers and their models",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := luminote.DefaultCatalog()
			if catalogPath != "" {
				if err := catalog.LoadFromFile(catalogPath); err != nil {
					return err
				}
			}

			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("PROVIDER", "DEFAULT MODEL", "KEY PREFIX", "MAX TOKENS")
			for _, id := range catalog.Providers() {
				p, _ := catalog.Provider(id)
				prefix := p.KeyPrefix
				if prefix == "" {
					prefix = "-"
				}
				caps, _ := catalog.Capabilities(id, p.DefaultModel)
				table.AddRow(id, p.DefaultModel, prefix, strconv.Itoa(caps.MaxTokens))
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)

			if !showModels {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout())

			models := uitable.New()
			models.AddRow("PROVIDER", "MODEL PREFIX", "STREAMING", "MAX TOKENS")
			for _, id := range catalog.Providers() {
				p, _ := catalog.Provider(id)
				prefixes := make([]string, 0, len(p.Models))
				for prefix := range p.Models {
					prefixes = append(prefixes, prefix)
				}
				slices.Sort(prefixes)
				for _, prefix := range prefixes {
					mc := p.Models[prefix]
					models.AddRow(id, prefix, strconv.FormatBool(mc.Streaming), strconv.Itoa(mc.MaxTokens))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), models)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog merged over the built-in one")
	cmd.Flags().BoolVar(&showModels, "models", false, "also list known model prefixes")
	return cmd
}

func versionCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			switch output {
			case "json":
				s, err := info.ToJSONIndent()
				if err != nil {
					return err
				}
				printf(cmd, "%s\n", s)
			case "short":
				printf(cmd, "%s\n", info)
			default:
				printf(cmd, "%s\n", info.Text())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, short)")
	return cmd
}
