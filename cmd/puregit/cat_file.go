package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lukasojd/puregit/object"
	"github.com/lukasojd/puregit/objectid"
)

var errBadOptionCombination = errors.New("incompatible cat-file options")

type catFileParams struct {
	typeOnly    bool
	sizeOnly    bool
	prettyPrint bool
	objectName  string
}

func newCatFileCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat-file OBJECT",
		Short: "print content or metadata for a repository object",
		Args:  cobra.ExactArgs(1),
	}

	typeOnly := cmd.Flags().BoolP("t", "t", false, "show the object's type")
	sizeOnly := cmd.Flags().BoolP("s", "s", false, "show the object's size")
	prettyPrint := cmd.Flags().BoolP("p", "p", false, "pretty-print the object's content")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		p := catFileParams{typeOnly: *typeOnly, sizeOnly: *sizeOnly, prettyPrint: *prettyPrint, objectName: args[0]}
		return catFileCmd(cmd.OutOrStdout(), flags, p)
	}
	return cmd
}

func catFileCmd(out io.Writer, flags *rootFlags, p catFileParams) error {
	count := 0
	for _, b := range []bool{p.typeOnly, p.sizeOnly, p.prettyPrint} {
		if b {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("%w: exactly one of -t, -s, -p is required", errBadOptionCombination)
	}

	repo, err := openRepository(flags.dir)
	if err != nil {
		return err
	}
	defer repo.Objects.Close()

	id, err := resolveObjectName(repo, p.objectName)
	if err != nil {
		return err
	}

	typ, body, err := repo.Objects.GetRawObject(id)
	if err != nil {
		return err
	}

	switch {
	case p.typeOnly:
		fmt.Fprintln(out, typ.String())
	case p.sizeOnly:
		fmt.Fprintln(out, len(body))
	case p.prettyPrint:
		obj, err := object.Decode(typ, body)
		if err != nil {
			return err
		}
		return prettyPrintObject(out, obj)
	}
	return nil
}

// resolveObjectName accepts either a full or abbreviated hex id, or a
// ref name, mirroring git's "object name" disambiguation.
func resolveObjectName(repo *repository, name string) (objectid.ID, error) {
	if id, err := objectid.FromHex(name); err == nil {
		return id, nil
	}
	if id, err := repo.Objects.ObjectByPrefix(name); err == nil {
		return id, nil
	}
	for _, candidate := range []string{name, "refs/heads/" + name, "refs/tags/" + name} {
		if id, err := repo.Refs.Resolve(candidate); err == nil {
			return id, nil
		}
	}
	return objectid.ID{}, fmt.Errorf("not a valid object name %q", name)
}

func prettyPrintObject(out io.Writer, obj object.Object) error {
	switch o := obj.(type) {
	case *object.Blob:
		_, err := out.Write(o.Content)
		return err
	case *object.Tree:
		for _, e := range o.Entries {
			kind := "blob"
			if e.Mode.IsSubtree() {
				kind = "tree"
			}
			fmt.Fprintf(out, "%s %s %s\t%s\n", e.Mode.String(), kind, e.ID.String(), e.Name)
		}
		return nil
	case *object.Commit:
		fmt.Fprintf(out, "tree %s\n", o.Tree.String())
		for _, p := range o.Parents {
			fmt.Fprintf(out, "parent %s\n", p.String())
		}
		fmt.Fprintf(out, "author %s\n", o.Author.String())
		fmt.Fprintf(out, "committer %s\n", o.Committer.String())
		fmt.Fprintln(out)
		fmt.Fprint(out, o.Message)
		return nil
	case *object.Tag:
		fmt.Fprintf(out, "object %s\n", o.Object.String())
		fmt.Fprintf(out, "type %s\n", o.ObjectType.String())
		fmt.Fprintf(out, "tag %s\n", o.Name)
		fmt.Fprintf(out, "tagger %s\n", o.Tagger.String())
		fmt.Fprintln(out)
		fmt.Fprint(out, o.Message)
		return nil
	default:
		return fmt.Errorf("pretty-print not supported for %T", obj)
	}
}
