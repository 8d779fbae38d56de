package catalog

func limit(v int) *int {
	return &v
}

// gtsrbEntries is the German Traffic Sign Recognition Benchmark class set.
func gtsrbEntries() []Entry {
	return []Entry{
		{ID: 0, Name: "speed_limit_20", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(20)},
		{ID: 1, Name: "speed_limit_30", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(30)},
		{ID: 2, Name: "speed_limit_50", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(50)},
		{ID: 3, Name: "speed_limit_60", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(60)},
		{ID: 4, Name: "speed_limit_70", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(70)},
		{ID: 5, Name: "speed_limit_80", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(80)},
		{ID: 6, Name: "end_speed_limit_80", Category: CategorySpeedLimit, Kind: KindEndLimit, Aliases: []string{"end_of_limit_80", "end_of_speed_limit_80"}},
		{ID: 7, Name: "speed_limit_100", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(100)},
		{ID: 8, Name: "speed_limit_120", Category: CategorySpeedLimit, Kind: KindLimit, LimitKPH: limit(120)},
		{ID: 9, Name: "no_passing", Category: CategoryProhibition},
		{ID: 10, Name: "no_passing_vehicles_over_3.5t", Category: CategoryProhibition},
		{ID: 11, Name: "right_of_way_next_intersection", Category: CategoryWarning},
		{ID: 12, Name: "priority_road", Category: CategoryInformational},
		{ID: 13, Name: "yield", Category: CategoryWarning},
		{ID: 14, Name: "stop", Category: CategoryWarning},
		{ID: 15, Name: "no_vehicles", Category: CategoryProhibition},
		{ID: 16, Name: "vehicles_over_3.5t_prohibited", Category: CategoryProhibition},
		{ID: 17, Name: "no_entry", Category: CategoryWarning},
		{ID: 18, Name: "general_caution", Category: CategoryWarning},
		{ID: 19, Name: "dangerous_curve_left", Category: CategoryWarning},
		{ID: 20, Name: "dangerous_curve_right", Category: CategoryWarning},
		{ID: 21, Name: "double_curve", Category: CategoryWarning},
		{ID: 22, Name: "bumpy_road", Category: CategoryWarning},
		{ID: 23, Name: "slippery_road", Category: CategoryWarning},
		{ID: 24, Name: "road_narrows_right", Category: CategoryWarning},
		{ID: 25, Name: "road_work", Category: CategoryWarning},
		{ID: 26, Name: "traffic_signals", Category: CategoryWarning},
		{ID: 27, Name: "pedestrians", Category: CategoryWarning},
		{ID: 28, Name: "children_crossing", Category: CategoryWarning},
		{ID: 29, Name: "bicycles_crossing", Category: CategoryWarning},
		{ID: 30, Name: "beware_ice_snow", Category: CategoryWarning},
		{ID: 31, Name: "wild_animals_crossing", Category: CategoryWarning},
		{ID: 32, Name: "end_all_limits", Category: CategorySpeedLimit, Kind: KindEndAllLimits, Aliases: []string{"end_of_all_limits"}},
		{ID: 33, Name: "turn_right_ahead", Category: CategoryMandatory},
		{ID: 34, Name: "turn_left_ahead", Category: CategoryMandatory},
		{ID: 35, Name: "ahead_only", Category: CategoryMandatory},
		{ID: 36, Name: "go_straight_or_right", Category: CategoryMandatory},
		{ID: 37, Name: "go_straight_or_left", Category: CategoryMandatory},
		{ID: 38, Name: "keep_right", Category: CategoryMandatory},
		{ID: 39, Name: "keep_left", Category: CategoryMandatory},
		{ID: 40, Name: "roundabout_mandatory", Category: CategoryMandatory},
		{ID: 41, Name: "end_no_passing", Category: CategoryInformational},
		{ID: 42, Name: "end_no_passing_vehicles_over_3.5t", Category: CategoryInformational},
	}
}
