// SPDX-License-Identifier: MIT

// Package beastmcmc computes likelihoods of continuous traits evolving by
// Brownian diffusion along a phylogeny.
//
// The work is split into small subpackages:
//
//	cdi/          the diffusion integrator: post-order merge, pre-order
//	                conditioning, root evaluation, diffusion cache and
//	                Wishart sufficient statistics, in scalar and full
//	                precision representations
//	matrix/       rank-aware pseudo-inversion and zero-annihilating
//	                products over gonum matrices
//	tree/         rooted binary trees, Newick parsing, traversal
//	                schedules, branch slots and Brownian simulation
//	impute/       conditional normal imputation of missing tip values
//	cmd/contdiff/ command line front end reading YAML scenarios
//
// A two-tip example, tips at 1 and 3 on unit branches under a flat prior:
//
//	   root
//	   ┌─┴─┐
//	   A   B
//	   1   3
//
// gives a log-likelihood of -2.2655.
//
//	go install github.com/zedomel/beast-mcmc/cmd/contdiff@latest
package beastmcmc
