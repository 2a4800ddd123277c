// Package glm fits penalized Poisson regression models over a path of
// decreasing regularization strengths and selects one point of the path
// by a configurable criterion.
//
// The model is
//
//	y_i ~ Poisson(mu_i),  log(mu_i) = b0 + x_i'b + offset_i
//
// where the offset is the log of each row's exposure. Coefficients are
// penalized with an elastic-net penalty lambda * (alpha*|b|_1 +
// (1-alpha)/2*|b|_2^2); the intercept is never penalized. Fitting uses
// iteratively reweighted least squares with a cyclic coordinate-descent
// inner loop, warm-started along a log-spaced path of ~100 lambda values
// from the smallest lambda that zeroes every coefficient down to a small
// fraction of it.
//
// Path selection supports three strategies: "1se" backs off one standard
// deviation (of the log deviance ratios over the upper half of the path)
// from the best deviance ratio, preferring the more regularized model;
// "AIC" and "BIC" minimize the respective information criterion with the
// number of non-zero coefficients as the model dimension.
//
// Fit is a pure function of its inputs: no randomness, no state.
package glm
