package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"retailpos/m/domain"
	"retailpos/m/internal/catalog"
	"retailpos/m/internal/identity"
	"retailpos/m/internal/seed"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeDB(db, opts.Logger)
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import products from a CSV file",
		Long: `Import products from a CSV file with the header
name,category,sale_price,cost,stock,type,description,barcode.
Invalid rows and barcodes already in the catalog are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeDB(db, opts.Logger)

			res, err := seed.LoadProducts(cmd.Context(), catalog.NewStore(db, opts.Logger), file, opts.Logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d products, skipped %d\n", res.Inserted, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "assets/products.csv", "path to the product CSV")
	return cmd
}

// NewUserCommand groups user administration.
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserCreateCommand(opts))
	return cmd
}

func newUserCreateCommand(opts *RootOptions) *cobra.Command {
	var username, password, role string
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a user with any role",
		Example: `  retailpos user create --username gerente --password s3cret --role manager`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeDB(db, opts.Logger)

			users := identity.NewService(db, opts.Config.Secret, opts.Config.TokenTTL, opts.Logger)
			user, err := users.CreateUser(cmd.Context(), username, password, domain.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %q with id %d\n", user.Role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStandard), "standard or manager")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
