// Package deps expands a resolved package into the dependencies that must be
// installed alongside it.
//
// [Builder.Expand] walks declared dependencies breadth-first with an explicit
// worklist. Each package id is resolved at most once per expansion, which
// keeps the walk finite on cyclic graphs (A -> B -> A) and makes the result
// order deterministic for a given feed. When an id is reached again, the
// new declared range must accept the version already chosen for it;
// otherwise Expand fails with DEPENDENCY_CONFLICT naming both declarations.
//
// For every dependency the builder queries the feed, picks the highest
// version satisfying the declared range, and consults the local inventory.
// Dependencies that are already satisfied are left out of the result but
// their own dependencies are still walked, so a satisfied package whose
// dependency was removed still gets that dependency reinstalled.
//
// The discovered graph is returned alongside the flat list and can be
// rendered with [ToDOT] and [RenderSVG].
package deps
