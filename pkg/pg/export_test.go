package pg

var ApplyPoolLimits = applyPoolLimits
