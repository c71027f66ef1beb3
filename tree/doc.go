// SPDX-License-Identifier: MIT

// Package tree holds the rooted binary phylogenies that drive the
// integrator in package cdi.
//
// It parses Newick, indexes nodes deterministically (tips first in input
// order, then internal nodes in post-order, root last), and derives from the
// topology everything the integrator needs:
//
//   - PostOrderOperations / PreOrderOperations: flat operation batches.
//   - BranchSlots(rate): slot indices and variances for UpdateDiffusionMatrices.
//   - Covariance: the tip covariance implied by the tree under Brownian motion.
//   - SimulateBrownian: trait values at every node, drawn with gonum's distmv.
//
// Walk is a depth-first traversal with pre-order (OnVisit) and post-order
// (OnExit) hooks, cancellation and a depth limit.
package tree
