package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/langbridge/bridge-engine/internal/scripts"
)

func scriptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Manage the signed script repository",
	}
	cmd.AddCommand(scriptsSaveCmd())
	cmd.AddCommand(scriptsLoadCmd())
	cmd.AddCommand(scriptsListCmd())
	cmd.AddCommand(scriptsDeleteCmd())
	cmd.AddCommand(scriptsBackupCmd())
	cmd.AddCommand(scriptsRestoreCmd())
	return cmd
}

func scriptsSaveCmd() *cobra.Command {
	var (
		file        string
		description string
		author      string
		folderPath  string
	)
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save or update a named script from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			code, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read script file: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			s, err := repo.Save(args[0], string(code), description, author, folderPath)
			if err != nil {
				return err
			}
			fmt.Printf("saved %q (version %d)\n", s.Name, s.Version)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the script source")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&author, "author", "", "Author")
	cmd.Flags().StringVar(&folderPath, "folder", "", "Folder path used by loadByPath")
	return cmd
}

func scriptsLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <name>",
		Short: "Load a script and print its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			s, err := repo.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Println(s.Code)
			return nil
		},
	}
}

func scriptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every saved script's metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			for _, s := range repo.List() {
				fmt.Printf("%-24s v%-3d %s\n", s.Name, s.Version, s.FolderPath)
			}
			return nil
		},
	}
}

func scriptsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			if err := repo.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

func scriptsBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Export the whole signed script index to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Scripts.BackupEnabled {
				return fmt.Errorf("scripts.backup_enabled is false in config")
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, err := scripts.NewBackupStore(ctx, cfg.Scripts.BackupBucket, cfg.Scripts.BackupPrefix, cfg.Scripts.BackupRegion, cfg.Scripts.BackupAccessKey, cfg.Scripts.BackupSecretKey)
			if err != nil {
				return err
			}
			if err := store.Export(ctx, repo); err != nil {
				return err
			}
			fmt.Printf("exported index to s3://%s/%s\n", cfg.Scripts.BackupBucket, cfg.Scripts.BackupPrefix)
			return nil
		},
	}
}

func scriptsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Import the signed script index from S3, merging into the local repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Scripts.BackupEnabled {
				return fmt.Errorf("scripts.backup_enabled is false in config")
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, err := scripts.NewBackupStore(ctx, cfg.Scripts.BackupBucket, cfg.Scripts.BackupPrefix, cfg.Scripts.BackupRegion, cfg.Scripts.BackupAccessKey, cfg.Scripts.BackupSecretKey)
			if err != nil {
				return err
			}
			if err := store.Import(ctx, repo); err != nil {
				return err
			}
			fmt.Printf("imported index from s3://%s/%s\n", cfg.Scripts.BackupBucket, cfg.Scripts.BackupPrefix)
			return nil
		},
	}
}
