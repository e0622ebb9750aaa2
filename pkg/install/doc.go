// Package install resolves package requests against ranked repositories and
// commits them to the local package store.
//
// # Components
//
// [Selector] walks repositories in priority order, gates untrusted ones behind
// a confirmation, and carries names not found in one repository to the next.
//
// [Engine] handles one repository attempt. [Engine.InstallPkgs] resolves each
// outstanding request, expands its dependencies, prunes what the store
// already has, and then runs a staging transaction:
//
//  1. download every candidate into a fresh staging directory (in parallel)
//  2. validate each staged payload: kind, license acceptance, command clobber
//  3. write the install descriptor into the staged tree
//  4. promote staged trees into the store, one package at a time
//
// Nothing touches the permanent store before step 4, and each promotion is a
// rename of a complete tree with backup and restore, so a failed attempt
// leaves every package either in its previous or its new state.
//
// # Errors
//
// PACKAGE_NOT_FOUND is the only error that does not end the invocation: the
// request stays outstanding for the next repository. Every other error code
// from [github.com/matzehuels/psresget/pkg/errors] is returned immediately.
package install
